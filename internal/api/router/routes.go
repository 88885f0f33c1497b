// Package router gắn toàn bộ route của ứng dụng lên Fiber app.
package router

import (
	"github.com/gofiber/fiber/v3"

	escrouter "safety_ops/internal/api/escalation/router"
	escsvc "safety_ops/internal/api/escalation/service"
	"safety_ops/internal/common"
)

// SetupRoutes đăng ký tất cả route lên app. Gọi sau khi engine đã được wire.
func SetupRoutes(app *fiber.App, engine *escsvc.Engine) error {
	// Health check cho load balancer / k8s probe
	app.Get("/health", func(c fiber.Ctx) error {
		return c.Status(common.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	})

	v1 := app.Group("/api/v1")
	return escrouter.Register(v1, engine)
}
