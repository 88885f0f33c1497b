package global

import (
	"fmt"

	"safety_ops/config"
	"safety_ops/internal/common"
	"safety_ops/internal/registry"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDB_CollectionName chứa tên các collection trong MongoDB
type MongoDB_CollectionName struct {
	// Escalation Engine Collections
	EscalationTemplates string // Tên collection cho escalation templates
	EscalationInstances string // Tên collection cho escalation instances (suppression state)
	EscalationEpisodes  string // Tên collection cho escalation episodes (cancellation/generation theo pair)
	EscalationLogs      string // Tên collection cho notification log entries (append-only)

	// Record Store Collections (mỗi module một collection)
	Incidents   string // Tên collection cho incident records
	WorkPermits string // Tên collection cho work permit records
	Audits      string // Tên collection cho audit records

	// Directory Collections
	Users string // Tên collection cho users (resolve theo role/department)
}

// Các biến toàn cục
var Validate *validator.Validate          // Biến để xác thực dữ liệu
var MongoDB_Session *mongo.Client         // Phiên kết nối tới MongoDB
var ServerConfig *config.Configuration    // Cấu hình của server
var MongoDB_ColNames = MongoDB_CollectionName{
	EscalationTemplates: "escalation_templates",
	EscalationInstances: "escalation_instances",
	EscalationEpisodes:  "escalation_episodes",
	EscalationLogs:      "escalation_logs",
	Incidents:           "incidents",
	WorkPermits:         "work_permits",
	Audits:              "audits",
	Users:               "users",
}

// Các Registry
var RegistryCollections = registry.NewRegistry[*mongo.Collection]() // Registry chứa các collections

// GetCollection lấy collection từ registry, trả lỗi nếu chưa được đăng ký
// (server khởi động sai thứ tự hoặc thiếu bước init)
func GetCollection(name string) (*mongo.Collection, error) {
	collection, exists := RegistryCollections.Get(name)
	if !exists {
		return nil, common.NewError(
			common.ErrCodeDatabase,
			fmt.Sprintf("Collection '%s' chưa được đăng ký trong registry", name),
			common.StatusInternalServerError,
			nil,
		)
	}
	return collection, nil
}
