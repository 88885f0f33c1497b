// Package models - EscalationTemplate thuộc domain Escalation.
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Các giá trị module được hỗ trợ
const (
	ModuleIncidents   = "incidents"
	ModuleWorkPermits = "work-permits"
	ModuleAudits      = "audits"
)

// Các operator của applicability rule
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "notEquals"
	OperatorContains    = "contains"
	OperatorGreaterThan = "greaterThan"
	OperatorLessThan    = "lessThan"
	OperatorIsEmpty     = "isEmpty"
	OperatorIsNotEmpty  = "isNotEmpty"
)

// Logic nối rule với accumulator
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Các loại trigger
const (
	TriggerKindTime  = "time"
	TriggerKindEvent = "event"
)

// EscalationTemplate - Template định nghĩa một chuỗi escalation cho một module.
// Admin tạo/sửa qua API; engine chỉ đọc.
type EscalationTemplate struct {
	ID                    primitive.ObjectID    `json:"id,omitempty" bson:"_id,omitempty"`
	Name                  string                `json:"name" bson:"name" validate:"required"`
	Module                string                `json:"module" bson:"module" validate:"required,escalation_module"`
	Active                bool                  `json:"active" bson:"active"`
	ApplicabilityRules    []EscalationRule      `json:"applicabilityRules" bson:"applicabilityRules"`
	Hierarchy             []HierarchyLevel      `json:"hierarchy" bson:"hierarchy" validate:"required,min=1,dive"`
	Triggers              []EscalationTrigger   `json:"triggers" bson:"triggers" validate:"required,min=1,dive"`
	NotificationTemplates NotificationTemplates `json:"notificationTemplates" bson:"notificationTemplates"`
	Version               int                   `json:"version" bson:"version"`
	CreatedAt             int64                 `json:"createdAt" bson:"createdAt"`
	UpdatedAt             int64                 `json:"updatedAt" bson:"updatedAt"`
}

// EscalationRule - Một điều kiện field/operator/value quyết định template có match record không.
// Logic gắn theo từng rule và được áp vào accumulator khi fold tuần tự (xem engine).
type EscalationRule struct {
	Field    string      `json:"field" bson:"field" validate:"required"`
	Operator string      `json:"operator" bson:"operator" validate:"required,rule_operator"`
	Value    interface{} `json:"value" bson:"value"`
	Logic    string      `json:"logic,omitempty" bson:"logic,omitempty" validate:"rule_logic"`
}

// HierarchyLevel - Ai nhận thông báo ở một mức escalation.
// Ít nhất một trong Roles hoặc FallbackEmail phải có.
type HierarchyLevel struct {
	Level         int      `json:"level" bson:"level" validate:"required,min=1"`
	Roles         []string `json:"roles,omitempty" bson:"roles,omitempty"`
	FallbackEmail string   `json:"fallbackEmail,omitempty" bson:"fallbackEmail,omitempty" validate:"omitempty,email"`
}

// EscalationTrigger - Tagged union: time-based hoặc event-based.
// Kind = "time": dùng ReferenceField/DaysBefore/DaysAfter.
// Kind = "event": dùng Field/Value.
type EscalationTrigger struct {
	Kind           string      `json:"kind" bson:"kind" validate:"required,trigger_kind"`
	Level          int         `json:"level" bson:"level" validate:"required,min=1"`
	ReferenceField string      `json:"referenceField,omitempty" bson:"referenceField,omitempty"`
	DaysBefore     int         `json:"daysBefore,omitempty" bson:"daysBefore,omitempty"`
	DaysAfter      int         `json:"daysAfter,omitempty" bson:"daysAfter,omitempty"`
	Field          string      `json:"field,omitempty" bson:"field,omitempty"`
	Value          interface{} `json:"value,omitempty" bson:"value,omitempty"`
}

// NotificationTemplates - Nội dung thông báo với placeholder {{fieldName}}
type NotificationTemplates struct {
	EmailSubject string `json:"emailSubject" bson:"emailSubject"`
	EmailBody    string `json:"emailBody" bson:"emailBody"`
	SMSBody      string `json:"smsBody,omitempty" bson:"smsBody,omitempty"`
}
