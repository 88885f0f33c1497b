package escsvc

import (
	"errors"
	"strings"
	"testing"

	escmodels "safety_ops/internal/api/escalation/models"
	"safety_ops/internal/common"
)

// validTestTemplate dựng một template hợp lệ làm baseline cho các case lỗi
func validTestTemplate() escmodels.EscalationTemplate {
	return escmodels.EscalationTemplate{
		Name:   "Work permit sắp hết hạn",
		Module: escmodels.ModuleWorkPermits,
		ApplicabilityRules: []escmodels.EscalationRule{
			{Field: "status", Operator: escmodels.OperatorEquals, Value: "Active"},
		},
		Hierarchy: []escmodels.HierarchyLevel{
			{Level: 1, Roles: []string{"supervisor"}},
			{Level: 2, Roles: []string{"manager"}, FallbackEmail: "safety@example.com"},
		},
		Triggers: []escmodels.EscalationTrigger{
			{Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "expiryDate", DaysBefore: 2},
			{Kind: escmodels.TriggerKindEvent, Level: 2, Field: "status", Value: "Rejected"},
		},
		NotificationTemplates: escmodels.NotificationTemplates{
			EmailSubject: "Work permit {{permitNumber}} sắp hết hạn",
			EmailBody:    "Work permit {{permitNumber}} hết hạn ngày {{expiryDate}}.",
			SMSBody:      "Work permit {{permitNumber}} sắp hết hạn",
		},
	}
}

func violationFields(t *testing.T, err error) []string {
	t.Helper()
	var verrs *common.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Mong đợi *common.ValidationErrors, nhận %T: %v", err, err)
	}
	fields := make([]string, 0, len(verrs.Violations))
	for _, v := range verrs.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func hasField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

func TestValidateTemplate_Valid(t *testing.T) {
	svc := &TemplateService{}
	tmpl := validTestTemplate()
	if err := svc.ValidateTemplate(&tmpl); err != nil {
		t.Errorf("Template hợp lệ không được trả lỗi, nhận: %v", err)
	}
}

// Validation phải gom TẤT CẢ violations trong một lần, không dừng ở lỗi đầu
func TestValidateTemplate_CollectsAllViolations(t *testing.T) {
	svc := &TemplateService{}
	tmpl := escmodels.EscalationTemplate{
		Name:   "",
		Module: "maintenance",
		ApplicabilityRules: []escmodels.EscalationRule{
			{Field: "", Operator: "matches", Logic: "XOR"},
		},
		Hierarchy: []escmodels.HierarchyLevel{
			{Level: 1, Roles: []string{"supervisor"}},
			{Level: 1, Roles: []string{"manager"}},
			{Level: 0},
		},
		Triggers: []escmodels.EscalationTrigger{
			{Kind: escmodels.TriggerKindTime, Level: 5},
			{Kind: "webhook", Level: 1},
		},
	}

	err := svc.ValidateTemplate(&tmpl)
	if err == nil {
		t.Fatal("Template hỏng nhiều chỗ phải trả lỗi")
	}
	fields := violationFields(t, err)

	for _, want := range []string{
		"name",
		"module",
		"applicabilityRules[0].field",
		"applicabilityRules[0].operator",
		"applicabilityRules[0].logic",
		"hierarchy[1].level", // level 1 trùng
		"hierarchy[2].level", // level 0 không dương
		"hierarchy[2]",       // không có roles lẫn fallback
		"triggers[0].level",  // level 5 không có trong hierarchy
		"triggers[0].referenceField",
		"triggers[1].kind",
	} {
		if !hasField(fields, want) {
			t.Errorf("Thiếu violation cho %q trong %v", want, fields)
		}
	}
}

func TestValidateTemplate_EmptyHierarchyAndTriggers(t *testing.T) {
	svc := &TemplateService{}
	tmpl := validTestTemplate()
	tmpl.Hierarchy = nil
	tmpl.Triggers = nil

	err := svc.ValidateTemplate(&tmpl)
	if err == nil {
		t.Fatal("Template không có hierarchy/triggers phải trả lỗi")
	}
	fields := violationFields(t, err)
	if !hasField(fields, "hierarchy") || !hasField(fields, "triggers") {
		t.Errorf("Phải có violations cho hierarchy và triggers, nhận %v", fields)
	}
}

func TestValidateTemplate_TimeTriggerShape(t *testing.T) {
	svc := &TemplateService{}

	// Không có daysBefore lẫn daysAfter
	tmpl := validTestTemplate()
	tmpl.Triggers = []escmodels.EscalationTrigger{
		{Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "expiryDate"},
	}
	err := svc.ValidateTemplate(&tmpl)
	if err == nil {
		t.Fatal("Time trigger không có days nào phải trả lỗi")
	}
	if !hasField(violationFields(t, err), "triggers[0]") {
		t.Errorf("Thiếu violation cho triggers[0]")
	}

	// Days âm
	tmpl = validTestTemplate()
	tmpl.Triggers = []escmodels.EscalationTrigger{
		{Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "expiryDate", DaysAfter: -1},
	}
	if err := svc.ValidateTemplate(&tmpl); err == nil {
		t.Error("daysAfter âm phải trả lỗi")
	}
}

func TestValidateTemplate_EventTriggerNeedsField(t *testing.T) {
	svc := &TemplateService{}
	tmpl := validTestTemplate()
	tmpl.Triggers = []escmodels.EscalationTrigger{
		{Kind: escmodels.TriggerKindEvent, Level: 1, Value: "Rejected"},
	}
	err := svc.ValidateTemplate(&tmpl)
	if err == nil {
		t.Fatal("Event trigger không có field phải trả lỗi")
	}
	if !hasField(violationFields(t, err), "triggers[0].field") {
		t.Errorf("Thiếu violation cho triggers[0].field")
	}
}

// SMS được check theo độ dài SAU khi gắn framing prefix của level cao nhất
// được tham chiếu - một SMS 155 ký tự hợp lệ với "[REMINDER] " nhưng không
// hợp lệ khi template có trigger level 4 ("[EMERGENCY] ")
func TestValidateTemplate_SMSFramedLength(t *testing.T) {
	svc := &TemplateService{}

	tmpl := validTestTemplate()
	tmpl.Hierarchy = append(tmpl.Hierarchy,
		escmodels.HierarchyLevel{Level: 3, Roles: []string{"director"}},
		escmodels.HierarchyLevel{Level: 4, Roles: []string{"ceo"}},
	)
	tmpl.Triggers = []escmodels.EscalationTrigger{
		{Kind: escmodels.TriggerKindTime, Level: 4, ReferenceField: "expiryDate", DaysAfter: 3},
	}
	// len("EMERGENCY") + len("[] ") = 12; 149 + 12 = 161 > 160
	tmpl.NotificationTemplates.SMSBody = strings.Repeat("a", 149)

	err := svc.ValidateTemplate(&tmpl)
	if err == nil {
		t.Fatal("SMS vượt giới hạn sau khi gắn prefix phải trả lỗi")
	}
	if !hasField(violationFields(t, err), "notificationTemplates.smsBody") {
		t.Errorf("Thiếu violation cho notificationTemplates.smsBody")
	}

	// Cùng SMS nhưng trigger level 1 ("[REMINDER] ", 11 ký tự): 160, vừa đủ
	tmpl.Triggers = []escmodels.EscalationTrigger{
		{Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "expiryDate", DaysAfter: 3},
	}
	if err := svc.ValidateTemplate(&tmpl); err != nil {
		t.Errorf("SMS 160 ký tự sau framing phải hợp lệ, nhận: %v", err)
	}
}
