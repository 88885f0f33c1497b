// Package models - Record và User là dữ liệu read-only engine lấy từ record store.
package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Record là một bản ghi phẳng của một module (incident, work permit, audit).
// Engine chỉ đọc, không bao giờ ghi ngược lại record store.
type Record map[string]interface{}

// ID trả về định danh của record (ưu tiên "id", fallback "_id")
func (r Record) ID() string {
	if v, ok := r["id"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if v, ok := r["_id"]; ok {
		switch id := v.(type) {
		case string:
			return id
		case primitive.ObjectID:
			return id.Hex()
		}
	}
	return ""
}

// Field tra cứu giá trị theo dotted path (ví dụ "location.site").
// Trả về (nil, false) nếu path không tồn tại.
func (r Record) Field(path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(r)

	for _, part := range parts {
		switch m := current.(type) {
		case map[string]interface{}:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		case Record:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		case primitive.M:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

// StringField trả về giá trị string của một field top-level, "" nếu không có
func (r Record) StringField(name string) string {
	if v, ok := r[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// User - Một người dùng trong danh bạ, resolve theo role/department
type User struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name       string             `json:"name" bson:"name"`
	Email      string             `json:"email" bson:"email"`
	Phone      string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Roles      []string           `json:"roles" bson:"roles"`
	Department string             `json:"department,omitempty" bson:"department,omitempty"`
	Active     bool               `json:"active" bson:"active"`
}
