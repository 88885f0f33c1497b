// Package escalation là engine lõi: đánh giá applicability, trigger,
// resolve hierarchy, chống gửi trùng/hủy và sinh nội dung thông báo.
// Package này không biết gì về Mongo hay Fiber - mọi phụ thuộc ngoài
// (record store, delivery channel, state store) đều được inject qua interface.
package escalation

import (
	"context"
	"time"

	escmodels "safety_ops/internal/api/escalation/models"
)

// RecordStore cung cấp templates, records và users cho engine.
// Production dùng Mongo (internal/api/escalation/service), test dùng fake.
type RecordStore interface {
	// TemplatesFor trả về các template active của một module
	TemplatesFor(ctx context.Context, module string) ([]escmodels.EscalationTemplate, error)
	// RecordsFor trả về toàn bộ records trong scope của một module
	RecordsFor(ctx context.Context, module string) ([]escmodels.Record, error)
	// UsersByRole trả về users active theo role, scope theo department nếu khác rỗng
	UsersByRole(ctx context.Context, role string, department string) ([]escmodels.User, error)
	// AppendLog ghi một log entry (append-only)
	AppendLog(ctx context.Context, entry escmodels.NotificationLogEntry) error
}

// DeliveryChannel gửi thông báo cho một recipient. Retry/queueing là việc của
// channel bên ngoài; engine chỉ ghi nhận kết quả từng lần gọi.
type DeliveryChannel interface {
	SendEmail(ctx context.Context, recipient Recipient, subject, body string) error
	SendSMS(ctx context.Context, recipient Recipient, body string) error
}

// Recipient là một người nhận cụ thể sau khi resolve hierarchy
type Recipient struct {
	Key      string // Định danh dùng trong suppression key (email hoặc phone)
	Name     string
	Email    string
	Phone    string
	Fallback bool // true nếu đây là synthetic recipient từ fallbackEmail
}

// InstanceKey định danh một escalation instance trong một episode
type InstanceKey struct {
	TemplateID   string
	RecordID     string
	Level        int
	RecipientKey string
	Generation   int64
}

// Episode là trạng thái hiện hành của một (template, record) pair
type Episode struct {
	Generation int64
	Cancelled  bool
}

// Decision là kết quả của một lần Reserve trước khi dispatch
type Decision int

const (
	DecisionProceed   Decision = iota // Chưa gửi trong window, được phép gửi
	DecisionDuplicate                 // Đã gửi trong 24h, suppress
	DecisionCancelled                 // Episode đã cancelled, không gửi nữa
)

// SuppressionWindow là khoảng thời gian không gửi lại thông báo trùng
const SuppressionWindow = 24 * time.Hour

// StateStore theo dõi escalation instances và episodes.
// Reserve/Rollback tách decide-and-mark khỏi delivery: engine giữ lock chỉ để
// quyết định và đánh dấu, gửi thông báo ngoài lock, rồi rollback nếu gửi thất bại.
type StateStore interface {
	// CurrentEpisode trả về episode hiện hành của pair (generation 1 nếu chưa có)
	CurrentEpisode(ctx context.Context, templateID, recordID string) (Episode, error)
	// OpenNewEpisode mở episode mới cho pair đã cancelled (generation + 1)
	OpenNewEpisode(ctx context.Context, templateID, recordID string) (Episode, error)
	// Cancel hủy episode hiện hành của pair. Trả về true nếu vừa chuyển sang
	// cancelled, false nếu đã cancelled từ trước (idempotent).
	Cancel(ctx context.Context, templateID, recordID string, now time.Time) (bool, error)
	// Reserve quyết định có được gửi cho key này không và đánh dấu lastSentAt = now
	// một cách atomic. Trả về lastSentAt trước đó để rollback khi delivery thất bại.
	// Một lần check bị suppress KHÔNG refresh window - chỉ Reserve thành công mới ghi.
	Reserve(ctx context.Context, key InstanceKey, now time.Time) (Decision, time.Time, error)
	// Rollback trả lastSentAt về giá trị trước Reserve (delivery thất bại,
	// cycle sau được retry)
	Rollback(ctx context.Context, key InstanceKey, prev time.Time) error
	// HasSent kiểm tra level đã từng gửi cho bất kỳ recipient nào trong episode chưa
	// (read-only, dùng cho simulate)
	HasSent(ctx context.Context, templateID, recordID string, level int, generation int64) (bool, error)
	// Evict dọn các instance có lastSentAt cũ hơn mốc cho trước
	Evict(ctx context.Context, olderThan time.Time) (int64, error)
}

// Warning là cảnh báo non-fatal sinh ra trong quá trình resolve/evaluate,
// trả về cho caller thay vì tự in ra (không coupling với UI).
type Warning struct {
	Code       string // Mã cảnh báo (ví dụ: MissingHierarchy)
	Message    string
	Role       string
	Department string
}

// Mã các warning
const (
	WarnMissingHierarchy = "MissingHierarchy"
)

// CompletionStatuses là tập status "hoàn tất" theo module. Khi status của record
// vào tập này, mọi escalation của pair bị hủy ngay trong cycle đang chạy.
var CompletionStatuses = map[string][]string{
	escmodels.ModuleIncidents:   {"Closed", "Resolved"},
	escmodels.ModuleWorkPermits: {"Closed", "Completed", "Approved"},
	escmodels.ModuleAudits:      {"Closed", "Completed"},
}

// IsCompletionStatus kiểm tra status có thuộc tập hoàn tất của module không
func IsCompletionStatus(module, status string) bool {
	for _, s := range CompletionStatuses[module] {
		if s == status {
			return true
		}
	}
	return false
}

// Modules liệt kê các module được engine xử lý mỗi cycle
var Modules = []string{
	escmodels.ModuleIncidents,
	escmodels.ModuleWorkPermits,
	escmodels.ModuleAudits,
}
