package escalation

import (
	"context"
	"fmt"

	escmodels "safety_ops/internal/api/escalation/models"
)

// HierarchyResolver map một hierarchy level thành danh sách recipient cụ thể.
type HierarchyResolver struct {
	store RecordStore
}

// NewHierarchyResolver tạo mới HierarchyResolver
func NewHierarchyResolver(store RecordStore) *HierarchyResolver {
	return &HierarchyResolver{store: store}
}

// Resolve trả về recipients cho một level.
//
// Với mỗi role trong level.Roles query users theo role (scope theo
// record.department nếu có), union kết quả và dedupe theo identity.
// Nếu không ra ai và level có FallbackEmail thì trả về một synthetic
// recipient từ email đó kèm warning MissingHierarchy (không in ra,
// caller quyết định surface thế nào). Nếu cả hai đều rỗng thì trả về
// zero recipients - caller phải log routing failure, không được drop im lặng.
func (r *HierarchyResolver) Resolve(ctx context.Context, level escmodels.HierarchyLevel, record escmodels.Record) ([]Recipient, []Warning, error) {
	department := record.StringField("department")

	seen := make(map[string]bool)
	recipients := make([]Recipient, 0, 4)

	for _, role := range level.Roles {
		users, err := r.store.UsersByRole(ctx, role, department)
		if err != nil {
			return nil, nil, fmt.Errorf("query users theo role %q thất bại: %w", role, err)
		}
		for _, u := range users {
			key := recipientKeyFor(u)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			recipients = append(recipients, Recipient{
				Key:   key,
				Name:  u.Name,
				Email: u.Email,
				Phone: u.Phone,
			})
		}
	}

	if len(recipients) > 0 {
		return recipients, nil, nil
	}

	if level.FallbackEmail != "" {
		warning := Warning{
			Code:       WarnMissingHierarchy,
			Message:    fmt.Sprintf("Không có user nào cho roles %v (department %q), dùng fallback %s", level.Roles, department, level.FallbackEmail),
			Role:       firstRole(level.Roles),
			Department: department,
		}
		return []Recipient{{
			Key:      level.FallbackEmail,
			Name:     "Fallback",
			Email:    level.FallbackEmail,
			Fallback: true,
		}}, []Warning{warning}, nil
	}

	// Không resolve được ai và không có fallback
	return nil, []Warning{{
		Code:       WarnMissingHierarchy,
		Message:    fmt.Sprintf("Không resolve được recipient nào cho level %d (roles %v, department %q) và không có fallback", level.Level, level.Roles, department),
		Role:       firstRole(level.Roles),
		Department: department,
	}}, nil
}

// recipientKeyFor chọn identity dùng trong suppression key: ưu tiên email
func recipientKeyFor(u escmodels.User) string {
	if u.Email != "" {
		return u.Email
	}
	return u.Phone
}

func firstRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}
