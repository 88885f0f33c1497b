package escalation

import (
	"context"
	"fmt"
	"time"

	escmodels "safety_ops/internal/api/escalation/models"
)

// Các status của một dòng kết quả simulate
const (
	SimStatusWouldFire        = "Would Fire"
	SimStatusWouldNotFire     = "Would Not Fire"
	SimStatusAlreadyTriggered = "Already Triggered"
	SimStatusNotApplicable    = "Not Applicable"
	SimStatusError            = "Error"
)

// SimulationResult là chẩn đoán cho một trigger của template trên một record
type SimulationResult struct {
	Level       int        `json:"level"`
	Kind        string     `json:"kind"`
	TriggerDate *time.Time `json:"triggerDate,omitempty"` // Ngày trigger bắt đầu fire (time trigger)
	Status      string     `json:"status"`
	Description string     `json:"description"`
	Error       string     `json:"error,omitempty"` // Nguyên văn lỗi cho trigger cấu hình sai
}

// Simulate chạy matching/trigger logic y hệt ProcessEscalations nhưng dừng
// trước mọi side effect: không gọi delivery, không ghi state, không append log.
// Pure function trên input + state hiện hành (chỉ đọc) - chạy hai lần liên tiếp
// cho cùng input trả về kết quả giống hệt nhau.
//
// Đây là surface chính để admin debug template mà không gây thông báo thật.
func (o *Orchestrator) Simulate(ctx context.Context, tmpl escmodels.EscalationTemplate, record escmodels.Record, now time.Time) ([]SimulationResult, error) {
	results := make([]SimulationResult, 0, len(tmpl.Triggers))

	applicable := Applies(tmpl.ApplicabilityRules, record)
	templateID := tmpl.ID.Hex()
	recordID := record.ID()

	episode, err := o.state.CurrentEpisode(ctx, templateID, recordID)
	if err != nil {
		return nil, fmt.Errorf("đọc episode thất bại: %w", err)
	}

	for _, trigger := range tmpl.Triggers {
		result := SimulationResult{
			Level: trigger.Level,
			Kind:  trigger.Kind,
		}

		if !applicable {
			result.Status = SimStatusNotApplicable
			result.Description = "Applicability rules không match record này"
			results = append(results, result)
			continue
		}

		switch trigger.Kind {
		case escmodels.TriggerKindTime:
			triggerDate, err := TriggerDate(trigger, record, now)
			if err != nil {
				// Trả nguyên văn lỗi để admin sửa template/record
				result.Status = SimStatusError
				result.Error = err.Error()
				results = append(results, result)
				continue
			}
			result.TriggerDate = &triggerDate
			result.Description = fmt.Sprintf("Time trigger trên field %q (daysBefore=%d, daysAfter=%d)",
				trigger.ReferenceField, trigger.DaysBefore, trigger.DaysAfter)

			fired, err := Fires(trigger, record, now)
			if err != nil {
				result.Status = SimStatusError
				result.Error = err.Error()
				results = append(results, result)
				continue
			}
			result.Status = o.simStatus(ctx, templateID, recordID, trigger.Level, episode, fired)

		case escmodels.TriggerKindEvent:
			result.Description = fmt.Sprintf("Event trigger: fire khi field %q == %v", trigger.Field, trigger.Value)
			fired, err := Fires(trigger, record, now)
			if err != nil {
				result.Status = SimStatusError
				result.Error = err.Error()
				results = append(results, result)
				continue
			}
			result.Status = o.simStatus(ctx, templateID, recordID, trigger.Level, episode, fired)

		default:
			result.Status = SimStatusError
			result.Error = fmt.Sprintf("Loại trigger không được hỗ trợ: %q", trigger.Kind)
		}

		results = append(results, result)
	}

	return results, nil
}

// simStatus phân biệt "Would Fire" với "Already Triggered" bằng state hiện hành
// (read-only: HasSent không ghi gì)
func (o *Orchestrator) simStatus(ctx context.Context, templateID, recordID string, level int, episode Episode, fired bool) string {
	if !fired {
		return SimStatusWouldNotFire
	}
	if episode.Cancelled {
		return SimStatusAlreadyTriggered
	}
	sent, err := o.state.HasSent(ctx, templateID, recordID, level, episode.Generation)
	if err == nil && sent {
		return SimStatusAlreadyTriggered
	}
	return SimStatusWouldFire
}
