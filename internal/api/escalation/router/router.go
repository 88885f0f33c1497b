// Package router đăng ký các route thuộc domain Escalation: Template, Process, Simulate, Logs.
package router

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	eschdl "safety_ops/internal/api/escalation/handler"
	escsvc "safety_ops/internal/api/escalation/service"
)

// Register đăng ký tất cả route escalation lên v1.
func Register(v1 fiber.Router, engine *escsvc.Engine) error {
	templateHandler, err := eschdl.NewTemplateHandler()
	if err != nil {
		return fmt.Errorf("create escalation template handler: %w", err)
	}

	v1.Post("/escalation/template", templateHandler.HandleCreate)
	v1.Get("/escalation/template", templateHandler.HandleList)
	v1.Get("/escalation/template/:id", templateHandler.HandleGet)
	v1.Put("/escalation/template/:id", templateHandler.HandleUpdate)
	v1.Patch("/escalation/template/:id/active", templateHandler.HandleSetActive)
	v1.Delete("/escalation/template/:id", templateHandler.HandleDelete)

	engineHandler := eschdl.NewEngineHandler(engine)
	v1.Post("/escalation/process", engineHandler.HandleProcess)
	v1.Post("/escalation/simulate", engineHandler.HandleSimulate)
	v1.Get("/escalation/logs", engineHandler.HandleLogs)

	return nil
}
