package escalation

import (
	"strings"

	escmodels "safety_ops/internal/api/escalation/models"
)

// Applies quyết định một template có áp dụng cho một record không.
// Danh sách rule rỗng => luôn áp dụng.
//
// Thuật toán là sequentialFold: duyệt rule trái sang phải, rule đầu tiên
// thay thế accumulator (logic của chính nó bị bỏ qua), mỗi rule sau kết hợp
// với accumulator hiện hành bằng logic CỦA RULE ĐÓ:
//
//	OR            => acc = acc || ruleResult
//	còn lại (kể cả rỗng) => acc = acc && ruleResult
//
// Đây KHÔNG phải expression tree: danh sách từ 3 rule trở lên trộn AND/OR
// sẽ nhóm không theo precedence chuẩn (non-associative). Hành vi này được
// giữ nguyên có chủ đích để tương thích với các template đã có; đừng "sửa"
// nếu chưa có quyết định sản phẩm.
func Applies(rules []escmodels.EscalationRule, record escmodels.Record) bool {
	if len(rules) == 0 {
		return true
	}
	return sequentialFold(rules, record)
}

// sequentialFold là fold tuần tự mô tả ở Applies
func sequentialFold(rules []escmodels.EscalationRule, record escmodels.Record) bool {
	acc := true
	for i, rule := range rules {
		fieldValue, _ := record.Field(rule.Field)
		result := evaluateOperator(rule.Operator, fieldValue, rule.Value)

		if i == 0 {
			acc = result
			continue
		}
		if strings.EqualFold(rule.Logic, escmodels.LogicOr) {
			acc = acc || result
		} else {
			acc = acc && result
		}
	}
	return acc
}

// evaluateOperator đánh giá một operator trên (fieldValue, ruleValue).
// Tập operator đóng; operator lạ luôn trả về false (template validation
// chặn từ lúc save nên nhánh này chỉ phòng dữ liệu cũ).
func evaluateOperator(operator string, fieldValue, ruleValue interface{}) bool {
	switch operator {
	case escmodels.OperatorEquals:
		return looseEquals(fieldValue, ruleValue)

	case escmodels.OperatorNotEquals:
		return !looseEquals(fieldValue, ruleValue)

	case escmodels.OperatorContains:
		haystack := strings.ToLower(coerceString(fieldValue))
		needle := strings.ToLower(coerceString(ruleValue))
		return strings.Contains(haystack, needle)

	case escmodels.OperatorGreaterThan:
		fn, fok := coerceNumber(fieldValue)
		rn, rok := coerceNumber(ruleValue)
		return fok && rok && fn > rn

	case escmodels.OperatorLessThan:
		fn, fok := coerceNumber(fieldValue)
		rn, rok := coerceNumber(ruleValue)
		return fok && rok && fn < rn

	case escmodels.OperatorIsEmpty:
		return isEmptyValue(fieldValue)

	case escmodels.OperatorIsNotEmpty:
		return !isEmptyValue(fieldValue)

	default:
		return false
	}
}
