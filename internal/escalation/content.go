package escalation

import (
	"fmt"
	"regexp"
	"strings"

	escmodels "safety_ops/internal/api/escalation/models"
)

// SMSMaxLength là số ký tự tối đa của một SMS body. Builder KHÔNG tự cắt;
// template validation chặn từ lúc save, caller chịu trách nhiệm kiểm tra
// với nội dung đã render.
const SMSMaxLength = 160

// Content là nội dung thông báo đã render cho một (template, record, level)
type Content struct {
	Subject   string
	Body      string
	SMSBody   string
	ActionURL string
	Priority  string
}

// Level framing: tiền tố subject/SMS và priority theo độ sâu escalation
const (
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// LevelPrefix trả về prefix framing của một level ("REMINDER", "FOLLOW-UP",
// "URGENT", "EMERGENCY"). Validation dùng để tính độ dài SMS cuối cùng.
func LevelPrefix(level int) string {
	prefix, _ := levelFraming(level)
	return prefix
}

// levelFraming trả về (prefix, priority) cho một level
func levelFraming(level int) (string, string) {
	switch {
	case level <= 1:
		return "REMINDER", PriorityNormal
	case level == 2:
		return "FOLLOW-UP", PriorityHigh
	case level == 3:
		return "URGENT", PriorityCritical
	default:
		return "EMERGENCY", PriorityCritical
	}
}

// placeholderPattern match {{fieldName}}, hỗ trợ dotted path
var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_.]+)\}\}`)

// ContentBuilder render subject/body/SMS từ template và record.
type ContentBuilder struct {
	baseURL string // Base URL để build action link tới record
}

// NewContentBuilder tạo mới ContentBuilder
func NewContentBuilder(baseURL string) *ContentBuilder {
	return &ContentBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// Build render nội dung cho một level.
// Placeholder {{fieldName}} được thay bằng giá trị của record khi field tồn tại;
// placeholder không match field nào thì GIỮ NGUYÊN - không thay bằng chuỗi rỗng,
// để admin debug được lỗi gõ sai tên field trong template.
func (b *ContentBuilder) Build(tmpl escmodels.EscalationTemplate, record escmodels.Record, level int) Content {
	prefix, priority := levelFraming(level)

	subject := substitute(tmpl.NotificationTemplates.EmailSubject, record)
	body := substitute(tmpl.NotificationTemplates.EmailBody, record)
	smsBody := substitute(tmpl.NotificationTemplates.SMSBody, record)

	subject = fmt.Sprintf("[%s] %s", prefix, subject)
	if smsBody != "" {
		smsBody = fmt.Sprintf("[%s] %s", prefix, smsBody)
	}

	return Content{
		Subject:   subject,
		Body:      body,
		SMSBody:   smsBody,
		ActionURL: b.ActionURL(tmpl.Module, record.ID()),
		Priority:  priority,
	}
}

// ActionURL build deep link tới record
func (b *ContentBuilder) ActionURL(module, recordID string) string {
	return fmt.Sprintf("%s/%s/%s", b.baseURL, module, recordID)
}

// substitute thay các placeholder {{field}} bằng giá trị từ record
func substitute(text string, record escmodels.Record) string {
	if text == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		field := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := record.Field(field)
		if !ok {
			// Field không tồn tại: giữ nguyên placeholder
			return match
		}
		return coerceString(value)
	})
}
