package escalation

import (
	"fmt"
	"strconv"
	"strings"
)

// Các helper coercion cho rule evaluation. Nguồn gốc là loose equality của
// JavaScript; ở đây quy tắc được viết tường minh và total:
//   - nil so với nil, "" hoặc giá trị vắng mặt => bằng nhau
//   - số so với chuỗi số => so sánh theo giá trị số
//   - còn lại => so sánh theo string representation

// coerceString chuyển một giá trị bất kỳ về string.
// nil trả về chuỗi rỗng.
func coerceString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// In số nguyên không có phần thập phân (42 thay vì 42.000000)
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceNumber thử chuyển một giá trị về float64.
// Trả về (0, false) cho giá trị không phải số và không parse được.
func coerceNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// isEmptyValue kiểm tra giá trị "rỗng": nil, chuỗi rỗng/toàn whitespace,
// slice/map rỗng
func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

// looseEquals so sánh hai giá trị theo quy tắc coercion tường minh:
//  1. field vắng mặt/nil chỉ bằng expected rỗng (nil hoặc "")
//  2. nếu cả hai coerce được về số thì so sánh số (\"5\" == 5)
//  3. còn lại so sánh string representation
func looseEquals(fieldValue, expected interface{}) bool {
	if fieldValue == nil {
		return expected == nil || coerceString(expected) == ""
	}
	if fn, ok := coerceNumber(fieldValue); ok {
		if en, ok := coerceNumber(expected); ok {
			return fn == en
		}
	}
	return coerceString(fieldValue) == coerceString(expected)
}

// strictEquals so sánh cho event trigger: không coerce chuỗi tùy tiện,
// chỉ chấp nhận khớp số cross-type (int của Go so với float64 từ BSON/JSON).
func strictEquals(fieldValue, expected interface{}) bool {
	if fieldValue == nil || expected == nil {
		return fieldValue == nil && expected == nil
	}
	if fieldValue == expected {
		return true
	}
	fn, fok := coerceNumberStrict(fieldValue)
	en, eok := coerceNumberStrict(expected)
	if fok && eok {
		return fn == en
	}
	fs, fok := fieldValue.(string)
	es, eok := expected.(string)
	return fok && eok && fs == es
}

// coerceNumberStrict như coerceNumber nhưng không parse chuỗi
func coerceNumberStrict(v interface{}) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return coerceNumber(v)
}
