// Package models - NotificationLogEntry: log append-only cho mọi outcome dispatch.
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Các status của một log entry
const (
	LogStatusSent      = "sent"
	LogStatusFailed    = "failed"
	LogStatusDuplicate = "duplicate"
	LogStatusCancelled = "cancelled"
)

// NotificationLogEntry - Một dòng log cho một outcome dispatch (per recipient).
// Append-only, thuộc sở hữu record store.
type NotificationLogEntry struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	TemplateID string             `json:"templateId" bson:"templateId"`
	RecordID   string             `json:"recordId" bson:"recordId"`
	Level      int                `json:"level" bson:"level"`
	Recipient  string             `json:"recipient" bson:"recipient"`
	Status     string             `json:"status" bson:"status"`
	Timestamp  int64              `json:"timestamp" bson:"timestamp"`
	Error      string             `json:"error,omitempty" bson:"error,omitempty"`
}
