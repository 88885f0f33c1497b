package escalation

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"safety_ops/internal/common"
	escmodels "safety_ops/internal/api/escalation/models"
)

// ErrInvalidReferenceDate báo reference date của time trigger không parse được.
// Non-fatal: trigger được coi là không fire, caller log warning data-quality.
var ErrInvalidReferenceDate = common.NewError(
	common.ErrCodeEscalationTrigger,
	"Reference date không parse được",
	common.StatusBadRequest,
	nil,
)

// Các layout date chấp nhận cho reference field dạng chuỗi
var referenceDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Fires quyết định một trigger đã fire cho record tại thời điểm now chưa.
//
// Time trigger: daysDiff = floor((now - ref) / 24h).
//   - Reference date trong TƯƠNG LAI: proactive reminder, fire khi đã vào trong
//     khoảng daysBefore ngày trước deadline (daysDiff >= -daysBefore).
//   - Reference date QUÁ KHỨ hoặc hiện tại: overdue escalation, fire khi
//     daysDiff >= daysAfter.
//
// Cùng một format trigger phục vụ cả "nhắc trước" lẫn "escalate sau" tùy
// reference date nằm phía nào của now - bất đối xứng này là chủ đích.
//
// Event trigger: record[field] == value (strict), predicate tại một thời điểm
// chứ không phải transition detector - fire mỗi cycle miễn điều kiện còn đúng;
// chống bão thông báo là việc của duplicate suppression, không phải của predicate.
func Fires(trigger escmodels.EscalationTrigger, record escmodels.Record, now time.Time) (bool, error) {
	switch trigger.Kind {
	case escmodels.TriggerKindTime:
		return timeFires(trigger, record, now)
	case escmodels.TriggerKindEvent:
		fieldValue, _ := record.Field(trigger.Field)
		return strictEquals(fieldValue, trigger.Value), nil
	default:
		return false, common.NewError(
			common.ErrCodeEscalationTrigger,
			fmt.Sprintf("Loại trigger không được hỗ trợ: %q", trigger.Kind),
			common.StatusBadRequest,
			nil,
		)
	}
}

// timeFires đánh giá time trigger
func timeFires(trigger escmodels.EscalationTrigger, record escmodels.Record, now time.Time) (bool, error) {
	ref, err := referenceDate(trigger, record)
	if err != nil {
		return false, err
	}

	daysDiff := daysBetween(ref, now)

	if ref.After(now) {
		return daysDiff >= -trigger.DaysBefore, nil
	}
	return daysDiff >= trigger.DaysAfter, nil
}

// daysBetween trả về floor((now - ref) / 1 ngày)
func daysBetween(ref, now time.Time) int {
	return int(math.Floor(now.Sub(ref).Hours() / 24))
}

// referenceDate đọc và parse reference field từ record.
// Trả về ErrInvalidReferenceDate (qua wrap) nếu field thiếu hoặc không parse được.
func referenceDate(trigger escmodels.EscalationTrigger, record escmodels.Record) (time.Time, error) {
	raw, ok := record.Field(trigger.ReferenceField)
	if !ok || raw == nil {
		return time.Time{}, fmt.Errorf("field %q không có trên record %q: %w",
			trigger.ReferenceField, record.ID(), ErrInvalidReferenceDate)
	}

	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case string:
		for _, layout := range referenceDateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("giá trị %q của field %q không parse được: %w",
			v, trigger.ReferenceField, ErrInvalidReferenceDate)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("field %q có kiểu %T không phải date: %w",
			trigger.ReferenceField, raw, ErrInvalidReferenceDate)
	}
}

// TriggerDate tính ngày trigger bắt đầu fire (dùng cho simulate).
// Time trigger tương lai: ref - daysBefore ngày; quá khứ: ref + daysAfter ngày.
func TriggerDate(trigger escmodels.EscalationTrigger, record escmodels.Record, now time.Time) (time.Time, error) {
	ref, err := referenceDate(trigger, record)
	if err != nil {
		return time.Time{}, err
	}
	if ref.After(now) {
		return ref.AddDate(0, 0, -trigger.DaysBefore), nil
	}
	return ref.AddDate(0, 0, trigger.DaysAfter), nil
}
