// Package models - EscalationInstance và EscalationEpisode: state chống gửi trùng và hủy.
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EscalationInstance - Một lần level đã fire cho (template, record, level, recipient)
// trong một episode. Được tạo lần đầu khi level fire, refresh lastSentAt mỗi lần
// gửi thành công. Không bao giờ xóa vật lý trong episode còn hiệu lực (audit);
// chỉ cleanup worker dọn các entry đã quá hạn suppression window từ lâu.
type EscalationInstance struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	TemplateID   string             `json:"templateId" bson:"templateId"`
	RecordID     string             `json:"recordId" bson:"recordId"`
	Level        int                `json:"level" bson:"level"`
	RecipientKey string             `json:"recipientKey" bson:"recipientKey"`
	Generation   int64              `json:"generation" bson:"generation"`
	LastSentAt   int64              `json:"lastSentAt" bson:"lastSentAt"` // Unix seconds; chỉ refresh khi gửi thật
	CreatedAt    int64              `json:"createdAt" bson:"createdAt"`
	UpdatedAt    int64              `json:"updatedAt" bson:"updatedAt"`
}

// EscalationEpisode - Trạng thái theo (template, record) pair.
// Một episode là vòng đời của một chuỗi escalation: từ lần match đầu tiên đến khi
// record hoàn tất (cancelled). Record reopen sau khi cancelled sẽ mở episode mới
// (Generation + 1); cancellation chỉ có hiệu lực trong phạm vi một episode.
type EscalationEpisode struct {
	ID          primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	TemplateID  string             `json:"templateId" bson:"templateId"`
	RecordID    string             `json:"recordId" bson:"recordId"`
	Generation  int64              `json:"generation" bson:"generation"`
	Cancelled   bool               `json:"cancelled" bson:"cancelled"`
	CancelledAt int64              `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	UpdatedAt   int64              `json:"updatedAt" bson:"updatedAt"`
}
