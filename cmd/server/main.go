package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	escsvc "safety_ops/internal/api/escalation/service"
	"safety_ops/internal/global"
	"safety_ops/internal/logger"
	"safety_ops/internal/worker"
)

// initLogger khởi tạo và cấu hình logger cho toàn bộ ứng dụng
func initLogger() {
	// Logger tự đọc environment variables để cấu hình (log dir, level, ...)
	if err := logger.Init(nil); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	log := logger.GetAppLogger()
	log.Info("Logger system initialized successfully")
}

// startWorkers chạy các background worker trong goroutine riêng với recover
func startWorkers(ctx context.Context, engine *escsvc.Engine) {
	log := logger.GetAppLogger()
	cfg := global.ServerConfig

	cycleWorker := worker.NewEscalationCycleWorker(
		engine.Orchestrator,
		time.Duration(cfg.EscalationInterval)*time.Minute,
	)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(map[string]interface{}{
					"panic": r,
				}).Error("🚨 [ESCALATION] Worker goroutine panic")
			}
		}()
		cycleWorker.Start(ctx)
	}()

	cleanupWorker := worker.NewInstanceCleanupWorker(
		engine.StateStore,
		time.Duration(cfg.CleanupInterval)*time.Hour,
		0, // retention mặc định
	)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(map[string]interface{}{
					"panic": r,
				}).Error("🧹 [INSTANCE_CLEANUP] Worker goroutine panic")
			}
		}()
		cleanupWorker.Start(ctx)
	}()

	log.Info("Background workers started successfully")
}

// main_thread khởi tạo và chạy Fiber server
func main_thread(engine *escsvc.Engine) {
	app := InitFiberApp(engine)

	address := global.ServerConfig.Address
	log := logger.GetAppLogger()
	log.WithFields(map[string]interface{}{
		"address": address,
	}).Info("Starting Fiber server...")

	if err := app.Listen(address, fiber.ListenConfig{}); err != nil {
		log.Fatalf("Error in Fiber Listen: %v", err)
	}
}

// Hàm main
func main() {
	// Khởi tạo logger
	initLogger()

	// Khởi tạo các biến toàn cục (validator, config, database, indexes)
	InitGlobal()

	// Khởi tạo registry collections
	InitRegistry()

	// Wire engine: record store + state store + delivery + orchestrator
	log := logger.GetAppLogger()
	engine, err := escsvc.NewEngine()
	if err != nil {
		log.Fatalf("Failed to create escalation engine: %v", err)
	}

	// Chạy background workers (escalation cycle + instance cleanup)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWorkers(ctx, engine)

	// Chạy Fiber server trên main thread
	main_thread(engine)
}
