package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"safety_ops/config"
	"safety_ops/internal/database"
	"safety_ops/internal/global"
)

// InitGlobal khởi tạo các biến toàn cục theo thứ tự phụ thuộc:
// validator -> config -> database -> indexes.
func InitGlobal() {
	initValidator()
	initConfig()
	initDatabase_MongoDB()
}

// Hàm khởi tạo validator (đăng ký custom validators: escalation_module, rule_operator, ...)
func initValidator() {
	global.InitValidator()
	logrus.Info("Initialized validator")
}

// Hàm khởi tạo cấu hình server
func initConfig() {
	global.ServerConfig = config.NewConfig()
	if global.ServerConfig == nil {
		logrus.Fatalf("Failed to initialize config: config is nil")
	}
	logrus.Info("Initialized server config")
}

// Hàm khởi tạo kết nối database và các index
func initDatabase_MongoDB() {
	var err error
	global.MongoDB_Session, err = database.GetInstance(global.ServerConfig)
	if err != nil {
		logrus.Fatalf("Failed to get database instance: %v", err)
	}
	logrus.Info("Connected to MongoDB")

	// Khởi tạo các index cho các collection escalation.
	// Index unique trên instance key là nền tảng của chống gửi trùng,
	// thiếu nó thì nhiều server instance có thể gửi trùng thông báo.
	db := global.MongoDB_Session.Database(global.ServerConfig.MongoDB_DBName)
	if err := database.CreateEscalationIndexes(context.TODO(), db); err != nil {
		logrus.Fatalf("Failed to create escalation indexes: %v", err)
	}
	logrus.Info("Created escalation indexes")
}
