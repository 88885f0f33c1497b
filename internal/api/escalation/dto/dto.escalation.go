// Package dto chứa request/response shapes cho domain Escalation
package dto

import (
	"time"

	escmodels "safety_ops/internal/api/escalation/models"
	"safety_ops/internal/escalation"
)

// SimulateRequest là request body cho POST /escalation/simulate.
// At (RFC 3339) cho phép admin xem template sẽ làm gì tại một thời điểm khác,
// bỏ trống thì dùng thời gian hiện tại.
type SimulateRequest struct {
	TemplateID string `json:"templateId" validate:"required"`
	RecordID   string `json:"recordId" validate:"required"`
	At         string `json:"at,omitempty"`
}

// ParseAt trả về thời điểm simulate, mặc định là now
func (r *SimulateRequest) ParseAt(now time.Time) (time.Time, error) {
	if r.At == "" {
		return now, nil
	}
	return time.Parse(time.RFC3339, r.At)
}

// SimulateResponse gói kết quả simulate của một template trên một record
type SimulateResponse struct {
	TemplateID string                        `json:"templateId"`
	RecordID   string                        `json:"recordId"`
	At         time.Time                     `json:"at"`
	Results    []escalation.SimulationResult `json:"results"`
}

// ProcessResponse là response của POST /escalation/process
type ProcessResponse struct {
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
}

// LogQuery là các query params của GET /escalation/logs
type LogQuery struct {
	TemplateID string `query:"templateId"`
	RecordID   string `query:"recordId"`
	Status     string `query:"status"`
	From       int64  `query:"from"`
	To         int64  `query:"to"`
	Page       int64  `query:"page"`
	Limit      int64  `query:"limit"`
}

// TemplateListQuery là các query params của GET /escalation/template
type TemplateListQuery struct {
	Module string `query:"module" validate:"omitempty,escalation_module"`
	Active *bool  `query:"active"`
	Page   int64  `query:"page"`
	Limit  int64  `query:"limit"`
}

// SetActiveRequest là request body cho PATCH /escalation/template/:id/active
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// TemplateInput là body tạo/cập nhật template (trùng shape model, tách riêng
// để client không gửi được các field hệ thống như version/createdAt)
type TemplateInput struct {
	Name                  string                          `json:"name"`
	Module                string                          `json:"module"`
	Active                bool                            `json:"active"`
	ApplicabilityRules    []escmodels.EscalationRule      `json:"applicabilityRules"`
	Hierarchy             []escmodels.HierarchyLevel      `json:"hierarchy"`
	Triggers              []escmodels.EscalationTrigger   `json:"triggers"`
	NotificationTemplates escmodels.NotificationTemplates `json:"notificationTemplates"`
}

// ToModel chuyển input thành model (các field hệ thống để service set)
func (in *TemplateInput) ToModel() escmodels.EscalationTemplate {
	return escmodels.EscalationTemplate{
		Name:                  in.Name,
		Module:                in.Module,
		Active:                in.Active,
		ApplicabilityRules:    in.ApplicabilityRules,
		Hierarchy:             in.Hierarchy,
		Triggers:              in.Triggers,
		NotificationTemplates: in.NotificationTemplates,
	}
}
