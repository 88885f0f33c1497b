package eschdl

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"

	basehdl "safety_ops/internal/api/base/handler"
	escdto "safety_ops/internal/api/escalation/dto"
	escsvc "safety_ops/internal/api/escalation/service"
	"safety_ops/internal/common"
	"safety_ops/internal/global"
	"safety_ops/internal/logger"
)

// EngineHandler xử lý các thao tác engine: chạy cycle on-demand, simulate
// và truy vấn notification logs.
type EngineHandler struct {
	engine *escsvc.Engine
}

// NewEngineHandler tạo mới EngineHandler
func NewEngineHandler(engine *escsvc.Engine) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// HandleProcess xử lý POST /escalation/process - chạy ngay một escalation cycle
// (ngoài chu kỳ của background worker, vd sau khi admin sửa template)
func (h *EngineHandler) HandleProcess(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		log := logger.GetAppLogger()
		start := time.Now()
		log.Info("🚨 [ESCALATION] Chạy escalation cycle theo yêu cầu API")

		h.engine.Orchestrator.ProcessEscalations(c.Context(), start)

		basehdl.HandleResponse(c, escdto.ProcessResponse{
			StartedAt:  start,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil)
		return nil
	})
}

// HandleSimulate xử lý POST /escalation/simulate - dry-run một template trên
// một record: trả về per-trigger kết quả, không gửi gì và không ghi state.
func (h *EngineHandler) HandleSimulate(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var req escdto.SimulateRequest
		if err := c.Bind().Body(&req); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("Dữ liệu gửi lên không đúng định dạng JSON. Chi tiết: %v", err),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}
		if err := global.Validate.Struct(&req); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationInput,
				"templateId và recordId là bắt buộc",
				common.StatusBadRequest,
				err.Error(),
			))
			return nil
		}

		at, err := req.ParseAt(time.Now())
		if err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("Thời điểm 'at' không đúng định dạng RFC 3339: %v", err),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}

		templateID, err := primitive.ObjectIDFromHex(req.TemplateID)
		if err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("templateId '%s' không đúng định dạng ObjectID", req.TemplateID),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}

		tmpl, err := h.engine.Templates.FindOneById(c.Context(), templateID)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}

		record, err := h.engine.RecordStore.FindRecord(c.Context(), tmpl.Module, req.RecordID)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}

		results, err := h.engine.Orchestrator.Simulate(c.Context(), tmpl, record, at)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}

		basehdl.HandleResponse(c, escdto.SimulateResponse{
			TemplateID: req.TemplateID,
			RecordID:   req.RecordID,
			At:         at,
			Results:    results,
		}, nil)
		return nil
	})
}

// HandleLogs xử lý GET /escalation/logs - truy vấn notification logs (audit)
func (h *EngineHandler) HandleLogs(c fiber.Ctx) error {
	return basehdl.SafeHandler(c, func() error {
		var q escdto.LogQuery
		if err := c.Bind().Query(&q); err != nil {
			basehdl.HandleResponse(c, nil, common.NewError(
				common.ErrCodeValidationFormat,
				fmt.Sprintf("Query params không hợp lệ. Chi tiết: %v", err),
				common.StatusBadRequest,
				nil,
			))
			return nil
		}

		result, err := h.engine.Logs.List(c.Context(), escsvc.LogFilter{
			TemplateID: q.TemplateID,
			RecordID:   q.RecordID,
			Status:     q.Status,
			From:       q.From,
			To:         q.To,
		}, q.Page, q.Limit)
		if err != nil {
			basehdl.HandleResponse(c, nil, err)
			return nil
		}
		basehdl.HandleResponse(c, result, nil)
		return nil
	})
}
