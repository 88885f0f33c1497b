// Package database - Index cho các collection của escalation engine.
package database

import (
	"context"
	"strings"

	"safety_ops/internal/global"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateEscalationIndexes tạo các index cho escalation engine.
// Gọi một lần lúc khởi động server, sau khi registry collections đã init.
func CreateEscalationIndexes(ctx context.Context, db *mongo.Database) error {
	// escalation_instances: key duy nhất cho duplicate suppression
	// (templateId, recordId, level, recipientKey, generation)
	instances := db.Collection(global.MongoDB_ColNames.EscalationInstances)
	if _, err := instances.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "templateId", Value: 1},
			{Key: "recordId", Value: 1},
			{Key: "level", Value: 1},
			{Key: "recipientKey", Value: 1},
			{Key: "generation", Value: 1},
		},
		Options: options.Index().SetName("escalation_instance_key").SetUnique(true),
	}); err != nil && !isIndexExistsError(err) {
		return err
	}

	// escalation_instances: (templateId, recordId) — cancellation quét theo pair
	if _, err := instances.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "templateId", Value: 1},
			{Key: "recordId", Value: 1},
		},
		Options: options.Index().SetName("escalation_instance_pair"),
	}); err != nil && !isIndexExistsError(err) {
		return err
	}

	// escalation_instances: lastSentAt — cleanup worker quét entries hết hạn window
	if _, err := instances.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "lastSentAt", Value: 1}},
		Options: options.Index().SetName("escalation_instance_last_sent"),
	}); err != nil && !isIndexExistsError(err) {
		return err
	}

	// escalation_episodes: key duy nhất theo (templateId, recordId)
	episodes := db.Collection(global.MongoDB_ColNames.EscalationEpisodes)
	if _, err := episodes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "templateId", Value: 1},
			{Key: "recordId", Value: 1},
		},
		Options: options.Index().SetName("escalation_episode_pair").SetUnique(true),
	}); err != nil && !isIndexExistsError(err) {
		return err
	}

	// escalation_templates: (module, active) — load templates mỗi cycle
	templates := db.Collection(global.MongoDB_ColNames.EscalationTemplates)
	if _, err := templates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "module", Value: 1},
			{Key: "active", Value: 1},
		},
		Options: options.Index().SetName("escalation_template_module_active"),
	}); err != nil && !isIndexExistsError(err) {
		return err
	}

	// escalation_logs: (templateId, recordId, timestamp) — tra cứu log theo pair
	logs := db.Collection(global.MongoDB_ColNames.EscalationLogs)
	if _, err := logs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "templateId", Value: 1},
			{Key: "recordId", Value: 1},
			{Key: "timestamp", Value: -1},
		},
		Options: options.Index().SetName("escalation_log_pair_time"),
	}); err != nil && !isIndexExistsError(err) {
		return err
	}

	// users: (roles, department) — hierarchy resolve theo role trong department
	users := db.Collection(global.MongoDB_ColNames.Users)
	if _, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "roles", Value: 1},
			{Key: "department", Value: 1},
		},
		Options: options.Index().SetName("user_roles_department"),
	}); err != nil && !isIndexExistsError(err) {
		return err
	}

	return nil
}

// isIndexExistsError nhận diện lỗi index đã tồn tại (không coi là lỗi)
func isIndexExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "IndexOptionsConflict") ||
		strings.Contains(msg, "IndexKeySpecsConflict") ||
		strings.Contains(msg, "already exists")
}
