package global

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// InitValidator khởi tạo và đăng ký các custom validator
func InitValidator() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("escalation_module", validateEscalationModule)
	_ = Validate.RegisterValidation("rule_operator", validateRuleOperator)
	_ = Validate.RegisterValidation("rule_logic", validateRuleLogic)
	_ = Validate.RegisterValidation("trigger_kind", validateTriggerKind)
}

// validateEscalationModule kiểm tra module thuộc tập cho phép
func validateEscalationModule(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "incidents", "work-permits", "audits":
		return true
	}
	return false
}

// validateRuleOperator kiểm tra operator của applicability rule
func validateRuleOperator(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "equals", "notEquals", "contains", "greaterThan", "lessThan", "isEmpty", "isNotEmpty":
		return true
	}
	return false
}

// validateRuleLogic kiểm tra logic của rule (rỗng được hiểu là AND)
func validateRuleLogic(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "", "AND", "OR":
		return true
	}
	return false
}

// validateTriggerKind kiểm tra loại trigger
func validateTriggerKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "time", "event":
		return true
	}
	return false
}
