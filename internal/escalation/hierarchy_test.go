package escalation

import (
	"context"
	"testing"

	escmodels "safety_ops/internal/api/escalation/models"
)

func TestResolve_UnionAndDedupe(t *testing.T) {
	store := newFakeStore()
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor", "manager"}, Active: true},
		{Name: "Bình", Email: "binh@example.com", Roles: []string{"manager"}, Active: true},
		{Name: "Cúc", Phone: "+84901234567", Roles: []string{"supervisor"}, Active: true},
		{Name: "Dũng", Email: "dung@example.com", Roles: []string{"manager"}, Active: false},
	}

	resolver := NewHierarchyResolver(store)
	level := escmodels.HierarchyLevel{Level: 1, Roles: []string{"supervisor", "manager"}}

	recipients, warnings, err := resolver.Resolve(context.Background(), level, escmodels.Record{"id": "inc-1"})
	if err != nil {
		t.Fatalf("Resolve lỗi: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Không được có warning khi resolve ra recipients, nhận %v", warnings)
	}
	// An thuộc cả hai role nhưng chỉ xuất hiện một lần; Dũng inactive bị loại
	if len(recipients) != 3 {
		t.Fatalf("Mong đợi 3 recipients (dedupe An, loại Dũng), nhận %d: %v", len(recipients), recipients)
	}
	keys := make(map[string]bool)
	for _, r := range recipients {
		if keys[r.Key] {
			t.Errorf("Recipient key %q bị trùng", r.Key)
		}
		keys[r.Key] = true
	}
	// User không có email dùng phone làm identity key
	if !keys["+84901234567"] {
		t.Errorf("User chỉ có phone phải dùng phone làm key, keys: %v", keys)
	}
}

func TestResolve_DepartmentScoping(t *testing.T) {
	store := newFakeStore()
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Department: "production", Active: true},
		{Name: "Bình", Email: "binh@example.com", Roles: []string{"supervisor"}, Department: "warehouse", Active: true},
	}

	resolver := NewHierarchyResolver(store)
	level := escmodels.HierarchyLevel{Level: 1, Roles: []string{"supervisor"}}
	record := escmodels.Record{"id": "inc-1", "department": "production"}

	recipients, _, err := resolver.Resolve(context.Background(), level, record)
	if err != nil {
		t.Fatalf("Resolve lỗi: %v", err)
	}
	if len(recipients) != 1 || recipients[0].Email != "an@example.com" {
		t.Errorf("Record có department phải scope users theo department đó, nhận %v", recipients)
	}
}

func TestResolve_FallbackEmail(t *testing.T) {
	store := newFakeStore() // không có user nào
	resolver := NewHierarchyResolver(store)
	level := escmodels.HierarchyLevel{Level: 2, Roles: []string{"manager"}, FallbackEmail: "safety@example.com"}

	recipients, warnings, err := resolver.Resolve(context.Background(), level, escmodels.Record{"id": "inc-1"})
	if err != nil {
		t.Fatalf("Resolve lỗi: %v", err)
	}
	if len(recipients) != 1 {
		t.Fatalf("Mong đợi 1 synthetic recipient từ fallback, nhận %d", len(recipients))
	}
	r := recipients[0]
	if r.Email != "safety@example.com" || r.Key != "safety@example.com" || !r.Fallback {
		t.Errorf("Synthetic recipient sai: %+v", r)
	}
	if len(warnings) != 1 || warnings[0].Code != WarnMissingHierarchy {
		t.Errorf("Phải kèm warning %s, nhận %v", WarnMissingHierarchy, warnings)
	}
}

func TestResolve_NoRecipientsNoFallback(t *testing.T) {
	store := newFakeStore()
	resolver := NewHierarchyResolver(store)
	level := escmodels.HierarchyLevel{Level: 1, Roles: []string{"supervisor"}}

	recipients, warnings, err := resolver.Resolve(context.Background(), level, escmodels.Record{"id": "inc-1"})
	if err != nil {
		t.Fatalf("Resolve lỗi: %v", err)
	}
	if len(recipients) != 0 {
		t.Errorf("Không có user lẫn fallback phải trả về zero recipients, nhận %v", recipients)
	}
	if len(warnings) != 1 || warnings[0].Code != WarnMissingHierarchy {
		t.Errorf("Zero recipients phải kèm warning %s, nhận %v", WarnMissingHierarchy, warnings)
	}
	if warnings[0].Role != "supervisor" {
		t.Errorf("Warning phải ghi role không resolve được, nhận %q", warnings[0].Role)
	}
}
