package escsvc

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	basemodels "safety_ops/internal/api/base/models"
	basesvc "safety_ops/internal/api/base/service"
	escmodels "safety_ops/internal/api/escalation/models"
	"safety_ops/internal/common"
	"safety_ops/internal/escalation"
	"safety_ops/internal/global"
)

// TemplateService quản lý escalation templates: CRUD + validation lúc lưu.
// Validation gom TẤT CẢ violations trong một lần để admin sửa một lượt,
// không dừng ở lỗi đầu tiên.
type TemplateService struct {
	*basesvc.BaseServiceMongoImpl[escmodels.EscalationTemplate]
}

// NewTemplateService tạo template service từ registry collection toàn cục
func NewTemplateService() (*TemplateService, error) {
	col, err := global.GetCollection(global.MongoDB_ColNames.EscalationTemplates)
	if err != nil {
		return nil, err
	}
	return &TemplateService{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[escmodels.EscalationTemplate](col),
	}, nil
}

// validModules và validOperators dùng cho validation thủ công
// (gom violations, không dùng struct tag vì tag dừng theo field)
var validOperators = map[string]bool{
	escmodels.OperatorEquals:      true,
	escmodels.OperatorNotEquals:   true,
	escmodels.OperatorContains:    true,
	escmodels.OperatorGreaterThan: true,
	escmodels.OperatorLessThan:    true,
	escmodels.OperatorIsEmpty:     true,
	escmodels.OperatorIsNotEmpty:  true,
}

var validModules = map[string]bool{
	escmodels.ModuleIncidents:   true,
	escmodels.ModuleWorkPermits: true,
	escmodels.ModuleAudits:      true,
}

// ValidateTemplate kiểm tra toàn bộ template và trả về đầy đủ danh sách violations.
// Template không hợp lệ KHÔNG bao giờ được ghi xuống database - engine được phép
// tin mọi template đã lưu.
func (s *TemplateService) ValidateTemplate(tmpl *escmodels.EscalationTemplate) error {
	verrs := &common.ValidationErrors{}

	if tmpl.Name == "" {
		verrs.Add("name", "Tên template là bắt buộc")
	}
	if !validModules[tmpl.Module] {
		verrs.Add("module", fmt.Sprintf("Module '%s' không được hỗ trợ (incidents, work-permits, audits)", tmpl.Module))
	}

	// Applicability rules
	for i, rule := range tmpl.ApplicabilityRules {
		if rule.Field == "" {
			verrs.Add(fmt.Sprintf("applicabilityRules[%d].field", i), "Field là bắt buộc")
		}
		if !validOperators[rule.Operator] {
			verrs.Add(fmt.Sprintf("applicabilityRules[%d].operator", i), fmt.Sprintf("Operator '%s' không hợp lệ", rule.Operator))
		}
		if rule.Logic != "" && rule.Logic != escmodels.LogicAnd && rule.Logic != escmodels.LogicOr {
			verrs.Add(fmt.Sprintf("applicabilityRules[%d].logic", i), fmt.Sprintf("Logic '%s' không hợp lệ (AND hoặc OR)", rule.Logic))
		}
	}

	// Hierarchy: levels dương, không trùng, mỗi level phải có roles hoặc fallbackEmail
	hierarchyLevels := map[int]bool{}
	if len(tmpl.Hierarchy) == 0 {
		verrs.Add("hierarchy", "Template phải có ít nhất một hierarchy level")
	}
	for i, h := range tmpl.Hierarchy {
		if h.Level < 1 {
			verrs.Add(fmt.Sprintf("hierarchy[%d].level", i), "Level phải là số nguyên dương")
		} else if hierarchyLevels[h.Level] {
			verrs.Add(fmt.Sprintf("hierarchy[%d].level", i), fmt.Sprintf("Level %d bị định nghĩa trùng", h.Level))
		} else {
			hierarchyLevels[h.Level] = true
		}
		if len(h.Roles) == 0 && h.FallbackEmail == "" {
			verrs.Add(fmt.Sprintf("hierarchy[%d]", i), "Level phải có roles hoặc fallbackEmail")
		}
	}

	// Triggers: phải tham chiếu hierarchy level tồn tại, đúng shape theo kind
	if len(tmpl.Triggers) == 0 {
		verrs.Add("triggers", "Template phải có ít nhất một trigger")
	}
	maxPrefixLen := 0
	for i, t := range tmpl.Triggers {
		if t.Level < 1 {
			verrs.Add(fmt.Sprintf("triggers[%d].level", i), "Level phải là số nguyên dương")
		} else if !hierarchyLevels[t.Level] {
			verrs.Add(fmt.Sprintf("triggers[%d].level", i), fmt.Sprintf("Level %d không có trong hierarchy", t.Level))
		}
		switch t.Kind {
		case escmodels.TriggerKindTime:
			if t.ReferenceField == "" {
				verrs.Add(fmt.Sprintf("triggers[%d].referenceField", i), "Time trigger phải có referenceField")
			}
			if t.DaysBefore < 0 || t.DaysAfter < 0 {
				verrs.Add(fmt.Sprintf("triggers[%d]", i), "daysBefore/daysAfter không được âm")
			}
			if t.DaysBefore == 0 && t.DaysAfter == 0 {
				verrs.Add(fmt.Sprintf("triggers[%d]", i), "Time trigger phải có daysBefore hoặc daysAfter")
			}
		case escmodels.TriggerKindEvent:
			if t.Field == "" {
				verrs.Add(fmt.Sprintf("triggers[%d].field", i), "Event trigger phải có field")
			}
		default:
			verrs.Add(fmt.Sprintf("triggers[%d].kind", i), fmt.Sprintf("Kind '%s' không hợp lệ (time hoặc event)", t.Kind))
		}

		// Theo dõi prefix dài nhất trong các level được tham chiếu để check SMS
		if l := len(escalation.LevelPrefix(t.Level)); l > maxPrefixLen {
			maxPrefixLen = l
		}
	}

	// SMS: độ dài SAU khi gắn framing prefix phải trong giới hạn một SMS.
	// Builder không tự cắt nên phải chặn từ lúc lưu.
	if sms := tmpl.NotificationTemplates.SMSBody; sms != "" {
		framed := maxPrefixLen + len("[] ") + len(sms)
		if framed > escalation.SMSMaxLength {
			verrs.Add("notificationTemplates.smsBody",
				fmt.Sprintf("SMS sau khi gắn prefix dài %d ký tự, vượt giới hạn %d", framed, escalation.SMSMaxLength))
		}
	}

	if verrs.HasViolations() {
		return verrs
	}
	return nil
}

// CreateTemplate validate và lưu template mới
func (s *TemplateService) CreateTemplate(ctx context.Context, tmpl escmodels.EscalationTemplate) (escmodels.EscalationTemplate, error) {
	if err := s.ValidateTemplate(&tmpl); err != nil {
		return tmpl, err
	}

	now := time.Now().Unix()
	tmpl.ID = primitive.NilObjectID
	tmpl.Version = 1
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	return s.InsertOne(ctx, tmpl)
}

// UpdateTemplate validate và thay thế toàn bộ template, tăng version
func (s *TemplateService) UpdateTemplate(ctx context.Context, id primitive.ObjectID, tmpl escmodels.EscalationTemplate) (escmodels.EscalationTemplate, error) {
	if err := s.ValidateTemplate(&tmpl); err != nil {
		return tmpl, err
	}

	existing, err := s.FindOneById(ctx, id)
	if err != nil {
		return tmpl, err
	}

	tmpl.ID = existing.ID
	tmpl.Version = existing.Version + 1
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.UpdatedAt = time.Now().Unix()

	update := bson.M{"$set": tmpl}
	return s.UpdateOne(ctx, bson.M{"_id": id}, update, nil)
}

// SetActive bật/tắt template mà không cần gửi lại toàn bộ nội dung
func (s *TemplateService) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (escmodels.EscalationTemplate, error) {
	update := bson.M{"$set": bson.M{
		"active":    active,
		"updatedAt": time.Now().Unix(),
	}}
	return s.UpdateOne(ctx, bson.M{"_id": id}, update, nil)
}

// ListTemplates trả về templates có phân trang, filter theo module/active nếu có
func (s *TemplateService) ListTemplates(ctx context.Context, module string, active *bool, page, limit int64) (*basemodels.PaginateResult[escmodels.EscalationTemplate], error) {
	filter := bson.M{}
	if module != "" {
		filter["module"] = module
	}
	if active != nil {
		filter["active"] = *active
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	return s.FindWithPagination(ctx, filter, page, limit, opts)
}
