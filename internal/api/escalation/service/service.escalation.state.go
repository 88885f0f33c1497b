// Package escsvc chứa các service Mongo cho hệ thống escalation
package escsvc

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	basesvc "safety_ops/internal/api/base/service"
	escmodels "safety_ops/internal/api/escalation/models"
	"safety_ops/internal/common"
	"safety_ops/internal/escalation"
	"safety_ops/internal/global"
)

// MongoStateStore triển khai escalation.StateStore trên hai collection:
// escalation_instances (suppression state) và escalation_episodes (cancellation state).
// Atomic-ness của Reserve dựa vào FindOneAndUpdate + unique index
// escalation_instance_key thay vì lock trong process, nên nhiều instance của
// server chạy song song vẫn an toàn.
type MongoStateStore struct {
	instances *basesvc.BaseServiceMongoImpl[escmodels.EscalationInstance]
	episodes  *basesvc.BaseServiceMongoImpl[escmodels.EscalationEpisode]
}

// NewMongoStateStore tạo state store từ registry collection toàn cục
func NewMongoStateStore() (*MongoStateStore, error) {
	instCol, err := global.GetCollection(global.MongoDB_ColNames.EscalationInstances)
	if err != nil {
		return nil, err
	}
	epCol, err := global.GetCollection(global.MongoDB_ColNames.EscalationEpisodes)
	if err != nil {
		return nil, err
	}
	return &MongoStateStore{
		instances: basesvc.NewBaseServiceMongo[escmodels.EscalationInstance](instCol),
		episodes:  basesvc.NewBaseServiceMongo[escmodels.EscalationEpisode](epCol),
	}, nil
}

func pairFilter(templateID, recordID string) bson.M {
	return bson.M{"templateId": templateID, "recordId": recordID}
}

func keyFilter(key escalation.InstanceKey) bson.M {
	return bson.M{
		"templateId":   key.TemplateID,
		"recordId":     key.RecordID,
		"level":        key.Level,
		"recipientKey": key.RecipientKey,
		"generation":   key.Generation,
	}
}

// CurrentEpisode trả về episode hiện hành của pair.
// Pair chưa có episode document được coi là episode đầu tiên (generation 1,
// chưa cancelled) - document chỉ được tạo khi Cancel hoặc OpenNewEpisode.
func (s *MongoStateStore) CurrentEpisode(ctx context.Context, templateID, recordID string) (escalation.Episode, error) {
	ep, err := s.episodes.FindOne(ctx, pairFilter(templateID, recordID), nil)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return escalation.Episode{Generation: 1, Cancelled: false}, nil
		}
		return escalation.Episode{}, err
	}
	return escalation.Episode{Generation: ep.Generation, Cancelled: ep.Cancelled}, nil
}

// OpenNewEpisode mở episode mới cho pair đã cancelled: tăng generation và reset
// cờ cancelled. Nếu worker khác đã reopen trước (filter không match), trả về
// episode hiện hành thay vì lỗi.
func (s *MongoStateStore) OpenNewEpisode(ctx context.Context, templateID, recordID string) (escalation.Episode, error) {
	filter := pairFilter(templateID, recordID)
	filter["cancelled"] = true

	update := bson.M{
		"$inc": bson.M{"generation": 1},
		"$set": bson.M{
			"cancelled": false,
			"updatedAt": time.Now().Unix(),
		},
		"$unset": bson.M{"cancelledAt": ""},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	ep, err := s.episodes.FindOneAndUpdate(ctx, filter, update, opts)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Đã được reopen bởi worker khác trong cùng cycle
			return s.CurrentEpisode(ctx, templateID, recordID)
		}
		return escalation.Episode{}, err
	}
	return escalation.Episode{Generation: ep.Generation, Cancelled: ep.Cancelled}, nil
}

// Cancel hủy episode hiện hành của pair. Trả về true chỉ khi lần gọi này
// thực hiện chuyển trạng thái (để caller ghi đúng một log entry cancelled).
func (s *MongoStateStore) Cancel(ctx context.Context, templateID, recordID string, now time.Time) (bool, error) {
	ep, err := s.episodes.FindOne(ctx, pairFilter(templateID, recordID), nil)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return false, err
		}
		// Pair chưa có episode document: tạo mới ở trạng thái cancelled
		_, err := s.episodes.InsertOne(ctx, escmodels.EscalationEpisode{
			TemplateID:  templateID,
			RecordID:    recordID,
			Generation:  1,
			Cancelled:   true,
			CancelledAt: now.Unix(),
			UpdatedAt:   now.Unix(),
		})
		if err != nil {
			if errors.Is(err, common.ErrDuplicate) {
				// Worker khác vừa tạo episode cho pair này, thử lại trên document đó
				return s.Cancel(ctx, templateID, recordID, now)
			}
			return false, err
		}
		return true, nil
	}

	if ep.Cancelled {
		return false, nil
	}

	// Chỉ match khi chưa cancelled: hai worker đua nhau thì chỉ một bên modify
	filter := bson.M{"_id": ep.ID, "cancelled": false}
	update := bson.M{"$set": bson.M{
		"cancelled":   true,
		"cancelledAt": now.Unix(),
		"updatedAt":   now.Unix(),
	}}
	modified, err := s.episodes.UpdateMany(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return modified == 1, nil
}

// Reserve quyết định có được gửi cho key này không và đánh dấu lastSentAt = now.
// Trình tự:
//  1. Episode cancelled → DecisionCancelled, không ghi gì.
//  2. Instance còn trong suppression window → DecisionDuplicate, KHÔNG ghi gì
//     (window chỉ slide khi gửi thật, check bị suppress không refresh).
//  3. Ngược lại FindOneAndUpdate atomic: chỉ match instance đã ra khỏi window,
//     set lastSentAt = now, trả về giá trị trước đó để rollback.
func (s *MongoStateStore) Reserve(ctx context.Context, key escalation.InstanceKey, now time.Time) (escalation.Decision, time.Time, error) {
	ep, err := s.CurrentEpisode(ctx, key.TemplateID, key.RecordID)
	if err != nil {
		return escalation.DecisionProceed, time.Time{}, err
	}
	// <= chứ không phải ==: worker còn giữ key của generation cũ cũng phải
	// bị chặn, không được gửi xuyên qua một episode đã cancelled
	if ep.Cancelled && key.Generation <= ep.Generation {
		return escalation.DecisionCancelled, time.Time{}, nil
	}

	cutoff := now.Add(-escalation.SuppressionWindow).Unix()

	// Check read-only trước: instance còn trong window thì không đụng vào document
	existing, err := s.instances.FindOne(ctx, keyFilter(key), nil)
	if err == nil && existing.LastSentAt > cutoff {
		return escalation.DecisionDuplicate, time.Unix(existing.LastSentAt, 0), nil
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return escalation.DecisionProceed, time.Time{}, err
	}

	filter := keyFilter(key)
	filter["$or"] = bson.A{
		bson.M{"lastSentAt": bson.M{"$lte": cutoff}},
		bson.M{"lastSentAt": bson.M{"$exists": false}},
	}
	update := bson.M{
		"$set": bson.M{
			"lastSentAt": now.Unix(),
			"updatedAt":  now.Unix(),
		},
		"$setOnInsert": bson.M{
			"templateId":   key.TemplateID,
			"recordId":     key.RecordID,
			"level":        key.Level,
			"recipientKey": key.RecipientKey,
			"generation":   key.Generation,
			"createdAt":    now.Unix(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var before escmodels.EscalationInstance
	err = s.instances.Collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Upsert tạo document mới: chưa từng gửi, prev là zero time
			return escalation.DecisionProceed, time.Time{}, nil
		}
		if mongo.IsDuplicateKeyError(err) {
			// Worker khác vừa Reserve cùng key giữa check và update
			return escalation.DecisionDuplicate, time.Time{}, nil
		}
		return escalation.DecisionProceed, time.Time{}, common.ConvertMongoError(err)
	}
	return escalation.DecisionProceed, time.Unix(before.LastSentAt, 0), nil
}

// Rollback trả lastSentAt về giá trị trước Reserve sau khi delivery thất bại.
// prev zero nghĩa là Reserve đã upsert document mới - xóa hẳn để cycle sau
// được coi như chưa từng gửi.
func (s *MongoStateStore) Rollback(ctx context.Context, key escalation.InstanceKey, prev time.Time) error {
	if prev.IsZero() {
		err := s.instances.DeleteOne(ctx, keyFilter(key))
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}

	update := bson.M{"$set": bson.M{
		"lastSentAt": prev.Unix(),
		"updatedAt":  time.Now().Unix(),
	}}
	_, err := s.instances.UpdateMany(ctx, keyFilter(key), update)
	return err
}

// HasSent kiểm tra level đã từng gửi cho bất kỳ recipient nào trong episode chưa
func (s *MongoStateStore) HasSent(ctx context.Context, templateID, recordID string, level int, generation int64) (bool, error) {
	filter := bson.M{
		"templateId": templateID,
		"recordId":   recordID,
		"level":      level,
		"generation": generation,
		"lastSentAt": bson.M{"$gt": 0},
	}
	return s.instances.DocumentExists(ctx, filter)
}

// Evict dọn các instance có lastSentAt cũ hơn mốc cho trước (cleanup worker gọi)
func (s *MongoStateStore) Evict(ctx context.Context, olderThan time.Time) (int64, error) {
	filter := bson.M{"lastSentAt": bson.M{"$lt": olderThan.Unix()}}
	return s.instances.DeleteMany(ctx, filter)
}
