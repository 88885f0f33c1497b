// Package eschdl chứa các HTTP handler cho domain Escalation
package eschdl

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	basehdl "safety_ops/internal/api/base/handler"
	escdto "safety_ops/internal/api/escalation/dto"
	escsvc "safety_ops/internal/api/escalation/service"
	"safety_ops/internal/common"
	"safety_ops/internal/global"
)

// TemplateHandler xử lý CRUD cho escalation templates
type TemplateHandler struct {
	service *escsvc.TemplateService
}

// NewTemplateHandler tạo mới TemplateHandler
func NewTemplateHandler() (*TemplateHandler, error) {
	service, err := escsvc.NewTemplateService()
	if err != nil {
		return nil, fmt.Errorf("create template service: %w", err)
	}
	return &TemplateHandler{service: service}, nil
}

// parseID lấy ObjectID từ path param, trả lỗi format nếu không hợp lệ
func parseID(c fiber.Ctx) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return primitive.NilObjectID, common.NewError(
			common.ErrCodeValidationFormat,
			fmt.Sprintf("ID '%s' không đúng định dạng ObjectID", c.Params("id")),
			common.StatusBadRequest,
			nil,
		)
	}
	return id, nil
}

// HandleCreate xử lý POST /escalation/template
func (h *TemplateHandler) HandleCreate(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var input escdto.TemplateInput
		if err := c.Bind().Body(&input); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("Dữ liệu gửi lên không đúng định dạng JSON. Chi tiết: %v", err),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}

		created, err := h.service.CreateTemplate(c.Context(), input.ToModel())
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}
		basehdl.HandleResponse(c, created, nil)
		return nil
	})
}

// HandleUpdate xử lý PUT /escalation/template/:id
func (h *TemplateHandler) HandleUpdate(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		id, err := parseID(c)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}

		var input escdto.TemplateInput
		if err := c.Bind().Body(&input); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("Dữ liệu gửi lên không đúng định dạng JSON. Chi tiết: %v", err),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}

		updated, err := h.service.UpdateTemplate(c.Context(), id, input.ToModel())
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}
		basehdl.HandleResponse(c, updated, nil)
		return nil
	})
}

// HandleGet xử lý GET /escalation/template/:id
func (h *TemplateHandler) HandleGet(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		id, err := parseID(c)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}

		tmpl, err := h.service.FindOneById(c.Context(), id)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}
		basehdl.HandleResponse(c, tmpl, nil)
		return nil
	})
}

// HandleList xử lý GET /escalation/template
func (h *TemplateHandler) HandleList(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var q escdto.TemplateListQuery
		if err := c.Bind().Query(&q); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("Query params không hợp lệ. Chi tiết: %v", err),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}
		if err := global.Validate.Struct(&q); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationInput,
				fmt.Sprintf("Module '%s' không được hỗ trợ (incidents, work-permits, audits)", q.Module),
				common.StatusBadRequest,
				err.Error(),
			))
			return nil
		}

		result, err := h.service.ListTemplates(c.Context(), q.Module, q.Active, q.Page, q.Limit)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}
		basehdl.HandleResponse(c, result, nil)
		return nil
	})
}

// HandleSetActive xử lý PATCH /escalation/template/:id/active
func (h *TemplateHandler) HandleSetActive(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		id, err := parseID(c)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}

		var req escdto.SetActiveRequest
		if err := c.Bind().Body(&req); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("Dữ liệu gửi lên không đúng định dạng JSON. Chi tiết: %v", err),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}

		updated, err := h.service.SetActive(c.Context(), id, req.Active)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}
		basehdl.HandleResponse(c, updated, nil)
		return nil
	})
}

// HandleDelete xử lý DELETE /escalation/template/:id
func (h *TemplateHandler) HandleDelete(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		id, err := parseID(c)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}

		if err := h.service.DeleteOne(c.Context(), bson.M{"_id": id}); err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}
		basehdl.HandleResponse(c, fiber.Map{"deleted": true}, nil)
		return nil
	})
}
