package escalation

import (
	"errors"
	"testing"
	"time"

	escmodels "safety_ops/internal/api/escalation/models"
)

func mustTime(t *testing.T, layout, value string) time.Time {
	t.Helper()
	tm, err := time.Parse(layout, value)
	if err != nil {
		t.Fatalf("parse %q thất bại: %v", value, err)
	}
	return tm
}

// Proactive reminder: reference date trong tương lai, fire khi đã vào trong
// khoảng daysBefore ngày trước deadline. Biên được tính theo floor của số
// ngày chênh lệch, nên 2 ngày 1 phút trước deadline vẫn CHƯA fire.
func TestFires_TimeTrigger_FutureReference(t *testing.T) {
	trigger := escmodels.EscalationTrigger{
		Kind:           escmodels.TriggerKindTime,
		Level:          1,
		ReferenceField: "dueDate",
		DaysBefore:     2,
	}
	record := escmodels.Record{"id": "r1", "dueDate": "2025-12-15T17:00:00Z"}

	cases := []struct {
		now   string
		fired bool
	}{
		{"2025-12-13T17:00:00Z", true},  // Đúng 2 ngày trước: fire
		{"2025-12-13T16:59:00Z", false}, // 2 ngày 1 phút trước: chưa vào khoảng
		{"2025-12-14T08:00:00Z", true},  // Trong khoảng
		{"2025-12-12T00:00:00Z", false}, // Còn quá xa
	}
	for _, c := range cases {
		now := mustTime(t, time.RFC3339, c.now)
		fired, err := Fires(trigger, record, now)
		if err != nil {
			t.Fatalf("now=%s: lỗi không mong muốn: %v", c.now, err)
		}
		if fired != c.fired {
			t.Errorf("now=%s: fired=%v, muốn %v", c.now, fired, c.fired)
		}
	}
}

// Overdue escalation: reference date trong quá khứ, fire khi đã quá
// daysAfter ngày (theo floor của số ngày chênh lệch).
func TestFires_TimeTrigger_PastReference(t *testing.T) {
	trigger := escmodels.EscalationTrigger{
		Kind:           escmodels.TriggerKindTime,
		Level:          2,
		ReferenceField: "deadline",
		DaysAfter:      1,
	}
	record := escmodels.Record{"id": "r1", "deadline": "2025-12-10"}

	cases := []struct {
		now   string
		fired bool
	}{
		{"2025-12-11T00:00:00Z", true},  // Đúng 1 ngày sau: fire
		{"2025-12-10T23:59:00Z", false}, // Chưa đủ 1 ngày
		{"2025-12-20T00:00:00Z", true},  // Quá hạn từ lâu: vẫn fire mỗi cycle
	}
	for _, c := range cases {
		now := mustTime(t, time.RFC3339, c.now)
		fired, err := Fires(trigger, record, now)
		if err != nil {
			t.Fatalf("now=%s: lỗi không mong muốn: %v", c.now, err)
		}
		if fired != c.fired {
			t.Errorf("now=%s: fired=%v, muốn %v", c.now, fired, c.fired)
		}
	}
}

// Reference date đúng bằng now đi theo nhánh quá khứ (daysAfter)
func TestFires_TimeTrigger_ReferenceEqualsNow(t *testing.T) {
	now := mustTime(t, time.RFC3339, "2025-12-10T12:00:00Z")
	record := escmodels.Record{"id": "r1", "deadline": now}

	immediate := escmodels.EscalationTrigger{
		Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "deadline", DaysAfter: 0,
	}
	fired, err := Fires(immediate, record, now)
	if err != nil {
		t.Fatalf("lỗi không mong muốn: %v", err)
	}
	if !fired {
		t.Error("daysAfter=0 với ref == now phải fire ngay")
	}

	delayed := escmodels.EscalationTrigger{
		Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "deadline", DaysAfter: 1,
	}
	fired, err = Fires(delayed, record, now)
	if err != nil {
		t.Fatalf("lỗi không mong muốn: %v", err)
	}
	if fired {
		t.Error("daysAfter=1 với ref == now chưa được fire")
	}
}

func TestFires_TimeTrigger_InvalidReferenceDate(t *testing.T) {
	trigger := escmodels.EscalationTrigger{
		Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "dueDate", DaysAfter: 1,
	}

	// Ngày không tồn tại
	record := escmodels.Record{"id": "r1", "dueDate": "2025-02-30"}
	fired, err := Fires(trigger, record, time.Now())
	if fired {
		t.Error("reference date không parse được thì không được fire")
	}
	if !errors.Is(err, ErrInvalidReferenceDate) {
		t.Errorf("muốn ErrInvalidReferenceDate, có: %v", err)
	}

	// Field thiếu
	record = escmodels.Record{"id": "r1"}
	fired, err = Fires(trigger, record, time.Now())
	if fired || !errors.Is(err, ErrInvalidReferenceDate) {
		t.Errorf("field thiếu phải cho (false, ErrInvalidReferenceDate), có: (%v, %v)", fired, err)
	}

	// Kiểu không phải date
	record = escmodels.Record{"id": "r1", "dueDate": true}
	_, err = Fires(trigger, record, time.Now())
	if !errors.Is(err, ErrInvalidReferenceDate) {
		t.Errorf("kiểu bool phải cho ErrInvalidReferenceDate, có: %v", err)
	}
}

func TestFires_TimeTrigger_DateFormats(t *testing.T) {
	now := mustTime(t, time.RFC3339, "2025-12-20T00:00:00Z")
	trigger := escmodels.EscalationTrigger{
		Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "dueDate", DaysAfter: 1,
	}

	values := []interface{}{
		"2025-12-10T00:00:00Z",
		"2025-12-10T00:00:00",
		"2025-12-10 00:00:00",
		"2025-12-10",
		int64(1765324800), // 2025-12-10 trong Unix seconds
		mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z"),
	}
	for _, v := range values {
		record := escmodels.Record{"id": "r1", "dueDate": v}
		fired, err := Fires(trigger, record, now)
		if err != nil {
			t.Errorf("dueDate=%v (%T): lỗi không mong muốn: %v", v, v, err)
			continue
		}
		if !fired {
			t.Errorf("dueDate=%v (%T): phải fire", v, v)
		}
	}
}

// Event trigger là predicate tại một thời điểm: fire mỗi cycle miễn điều kiện
// còn đúng, và so sánh strict (không parse chuỗi thành số).
func TestFires_EventTrigger(t *testing.T) {
	trigger := escmodels.EscalationTrigger{
		Kind: escmodels.TriggerKindEvent, Level: 1, Field: "status", Value: "Rejected",
	}

	record := escmodels.Record{"id": "r1", "status": "Rejected"}
	fired, err := Fires(trigger, record, time.Now())
	if err != nil || !fired {
		t.Errorf("status khớp phải fire, có: (%v, %v)", fired, err)
	}

	record["status"] = "Open"
	fired, _ = Fires(trigger, record, time.Now())
	if fired {
		t.Error("status không khớp thì không fire")
	}

	// Strict: "5" (chuỗi) không bằng 5 (số)
	numTrigger := escmodels.EscalationTrigger{
		Kind: escmodels.TriggerKindEvent, Level: 1, Field: "severity", Value: float64(5),
	}
	record = escmodels.Record{"id": "r1", "severity": "5"}
	fired, _ = Fires(numTrigger, record, time.Now())
	if fired {
		t.Error("event trigger phải so sánh strict, \"5\" không bằng 5")
	}

	// Nhưng int so với float64 (JSON/BSON decode) vẫn khớp
	record["severity"] = 5
	fired, _ = Fires(numTrigger, record, time.Now())
	if !fired {
		t.Error("5 (int) phải bằng 5.0 (float64) cho event trigger")
	}
}

func TestFires_UnknownKind(t *testing.T) {
	trigger := escmodels.EscalationTrigger{Kind: "cron", Level: 1}
	fired, err := Fires(trigger, escmodels.Record{"id": "r1"}, time.Now())
	if fired || err == nil {
		t.Errorf("kind lạ phải cho (false, error), có: (%v, %v)", fired, err)
	}
}

func TestTriggerDate(t *testing.T) {
	now := mustTime(t, time.RFC3339, "2025-12-01T00:00:00Z")

	// Tương lai: ref - daysBefore
	record := escmodels.Record{"id": "r1", "dueDate": "2025-12-15T00:00:00Z"}
	trigger := escmodels.EscalationTrigger{
		Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "dueDate", DaysBefore: 2,
	}
	got, err := TriggerDate(trigger, record, now)
	if err != nil {
		t.Fatalf("lỗi không mong muốn: %v", err)
	}
	want := mustTime(t, time.RFC3339, "2025-12-13T00:00:00Z")
	if !got.Equal(want) {
		t.Errorf("trigger date = %v, muốn %v", got, want)
	}

	// Quá khứ: ref + daysAfter
	record["dueDate"] = "2025-11-20T00:00:00Z"
	trigger.DaysBefore = 0
	trigger.DaysAfter = 3
	got, err = TriggerDate(trigger, record, now)
	if err != nil {
		t.Fatalf("lỗi không mong muốn: %v", err)
	}
	want = mustTime(t, time.RFC3339, "2025-11-23T00:00:00Z")
	if !got.Equal(want) {
		t.Errorf("trigger date = %v, muốn %v", got, want)
	}
}
