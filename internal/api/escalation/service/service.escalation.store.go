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
	"safety_ops/internal/global"
)

// MongoRecordStore triển khai escalation.RecordStore: cung cấp templates,
// records và users cho engine, ghi notification logs.
// Mỗi module safety đọc từ collection riêng (incidents, work_permits, audits).
type MongoRecordStore struct {
	templates *basesvc.BaseServiceMongoImpl[escmodels.EscalationTemplate]
	users     *basesvc.BaseServiceMongoImpl[escmodels.User]
	records   map[string]*basesvc.BaseServiceMongoImpl[escmodels.Record]
	logs      *LogService
}

// moduleCollections map module sang tên collection records
func moduleCollections() map[string]string {
	return map[string]string{
		escmodels.ModuleIncidents:   global.MongoDB_ColNames.Incidents,
		escmodels.ModuleWorkPermits: global.MongoDB_ColNames.WorkPermits,
		escmodels.ModuleAudits:      global.MongoDB_ColNames.Audits,
	}
}

// NewMongoRecordStore tạo record store từ registry collection toàn cục
func NewMongoRecordStore(logs *LogService) (*MongoRecordStore, error) {
	tmplCol, err := global.GetCollection(global.MongoDB_ColNames.EscalationTemplates)
	if err != nil {
		return nil, err
	}
	userCol, err := global.GetCollection(global.MongoDB_ColNames.Users)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*basesvc.BaseServiceMongoImpl[escmodels.Record])
	for module, colName := range moduleCollections() {
		col, err := global.GetCollection(colName)
		if err != nil {
			return nil, err
		}
		records[module] = basesvc.NewBaseServiceMongo[escmodels.Record](col)
	}

	return &MongoRecordStore{
		templates: basesvc.NewBaseServiceMongo[escmodels.EscalationTemplate](tmplCol),
		users:     basesvc.NewBaseServiceMongo[escmodels.User](userCol),
		records:   records,
		logs:      logs,
	}, nil
}

// TemplatesFor trả về các template active của một module
func (s *MongoRecordStore) TemplatesFor(ctx context.Context, module string) ([]escmodels.EscalationTemplate, error) {
	filter := bson.M{"module": module, "active": true}
	return s.templates.Find(ctx, filter, nil)
}

// RecordsFor trả về toàn bộ records trong scope của một module.
// Records đã hoàn tất vẫn được trả về: engine cần thấy chúng để hủy
// các escalation đang chạy.
func (s *MongoRecordStore) RecordsFor(ctx context.Context, module string) ([]escmodels.Record, error) {
	svc, ok := s.records[module]
	if !ok {
		return nil, common.NewError(
			common.ErrCodeEscalationTemplate,
			fmt.Sprintf("Module '%s' không được hỗ trợ", module),
			common.StatusBadRequest,
			nil,
		)
	}
	return svc.Find(ctx, bson.M{}, nil)
}

// FindRecord tìm một record theo ID trong collection của module (phục vụ simulate).
// _id trong các collection records có thể là ObjectID hoặc string tùy nguồn import.
func (s *MongoRecordStore) FindRecord(ctx context.Context, module, recordID string) (escmodels.Record, error) {
	svc, ok := s.records[module]
	if !ok {
		return nil, common.NewError(
			common.ErrCodeEscalationTemplate,
			fmt.Sprintf("Module '%s' không được hỗ trợ", module),
			common.StatusBadRequest,
			nil,
		)
	}

	ids := bson.A{bson.M{"_id": recordID}, bson.M{"id": recordID}}
	if oid, err := primitive.ObjectIDFromHex(recordID); err == nil {
		ids = append(ids, bson.M{"_id": oid})
	}
	return svc.FindOne(ctx, bson.M{"$or": ids}, nil)
}

// UsersByRole trả về users active theo role, scope theo department nếu khác rỗng
func (s *MongoRecordStore) UsersByRole(ctx context.Context, role string, department string) ([]escmodels.User, error) {
	filter := bson.M{"roles": role, "active": true}
	if department != "" {
		filter["department"] = department
	}
	return s.users.Find(ctx, filter, nil)
}

// AppendLog ghi một log entry (append-only, uỷ quyền cho LogService)
func (s *MongoRecordStore) AppendLog(ctx context.Context, entry escmodels.NotificationLogEntry) error {
	return s.logs.Append(ctx, entry)
}

// LogService quản lý notification logs (append-only, phục vụ audit)
type LogService struct {
	*basesvc.BaseServiceMongoImpl[escmodels.NotificationLogEntry]
}

// NewLogService tạo log service từ registry collection toàn cục
func NewLogService() (*LogService, error) {
	col, err := global.GetCollection(global.MongoDB_ColNames.EscalationLogs)
	if err != nil {
		return nil, err
	}
	return &LogService{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[escmodels.NotificationLogEntry](col),
	}, nil
}

// Append ghi một log entry mới. Timestamp được set nếu caller chưa set.
func (l *LogService) Append(ctx context.Context, entry escmodels.NotificationLogEntry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	_, err := l.InsertOne(ctx, entry)
	return err
}

// LogFilter là các điều kiện lọc khi truy vấn logs
type LogFilter struct {
	TemplateID string
	RecordID   string
	Status     string
	From       int64 // Unix seconds, 0 = không giới hạn
	To         int64 // Unix seconds, 0 = không giới hạn
}

// List trả về logs mới nhất trước, có phân trang
func (l *LogService) List(ctx context.Context, f LogFilter, page, limit int64) (*basemodels.PaginateResult[escmodels.NotificationLogEntry], error) {
	filter := bson.M{}
	if f.TemplateID != "" {
		filter["templateId"] = f.TemplateID
	}
	if f.RecordID != "" {
		filter["recordId"] = f.RecordID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	timeRange := bson.M{}
	if f.From > 0 {
		timeRange["$gte"] = f.From
	}
	if f.To > 0 {
		timeRange["$lte"] = f.To
	}
	if len(timeRange) > 0 {
		filter["timestamp"] = timeRange
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	return l.FindWithPagination(ctx, filter, page, limit, opts)
}
