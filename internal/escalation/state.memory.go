package escalation

import (
	"context"
	"sync"
	"time"
)

// MemoryStateStore là StateStore in-memory, dùng cho test và chạy standalone.
// Mọi thao tác trên một (template, record) pair serialize qua mutex của riêng
// pair đó, nên duplicate-check-then-mark và cancellation check-then-act là
// atomic: hai cycle chạy song song không thể cùng quyết định "không trùng"
// rồi cùng gửi.
type MemoryStateStore struct {
	mu    sync.Mutex // chỉ bảo vệ map pairs; state của từng pair có lock riêng
	pairs map[pairKey]*pairState
}

type pairKey struct {
	templateID string
	recordID   string
}

type instanceSubKey struct {
	level        int
	recipientKey string
	generation   int64
}

type pairState struct {
	mu          sync.Mutex
	generation  int64
	cancelled   bool
	cancelledAt time.Time
	lastSent    map[instanceSubKey]time.Time
}

// NewMemoryStateStore tạo mới MemoryStateStore
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		pairs: make(map[pairKey]*pairState),
	}
}

// pair lấy (hoặc tạo) state cho một pair - chỉ dùng cho thao tác ghi
func (s *MemoryStateStore) pair(templateID, recordID string) *pairState {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{templateID: templateID, recordID: recordID}
	p, ok := s.pairs[k]
	if !ok {
		p = &pairState{
			generation: 1,
			lastSent:   make(map[instanceSubKey]time.Time),
		}
		s.pairs[k] = p
	}
	return p
}

// peek lấy state của một pair nếu đã tồn tại, không tạo mới.
// Thao tác chỉ đọc (CurrentEpisode, HasSent - simulate gọi qua đây) dùng peek
// để không phình map theo mỗi id được query.
func (s *MemoryStateStore) peek(templateID, recordID string) (*pairState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[pairKey{templateID: templateID, recordID: recordID}]
	return p, ok
}

// CurrentEpisode trả về episode hiện hành của pair.
// Pair chưa có state được coi là episode đầu tiên, không tạo entry.
func (s *MemoryStateStore) CurrentEpisode(_ context.Context, templateID, recordID string) (Episode, error) {
	p, ok := s.peek(templateID, recordID)
	if !ok {
		return Episode{Generation: 1, Cancelled: false}, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Episode{Generation: p.generation, Cancelled: p.cancelled}, nil
}

// OpenNewEpisode mở episode mới (generation + 1), reset cancelled
func (s *MemoryStateStore) OpenNewEpisode(_ context.Context, templateID, recordID string) (Episode, error) {
	p := s.pair(templateID, recordID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.cancelled = false
	p.cancelledAt = time.Time{}
	return Episode{Generation: p.generation, Cancelled: false}, nil
}

// Cancel hủy episode hiện hành. Idempotent: trả về false nếu đã cancelled.
func (s *MemoryStateStore) Cancel(_ context.Context, templateID, recordID string, now time.Time) (bool, error) {
	p := s.pair(templateID, recordID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return false, nil
	}
	p.cancelled = true
	p.cancelledAt = now
	return true, nil
}

// Reserve quyết định và đánh dấu atomic dưới lock của pair.
// Một lần check bị suppress không ghi gì - chỉ Reserve thành công mới
// set lastSentAt (sliding window chỉ trượt khi gửi thật).
func (s *MemoryStateStore) Reserve(_ context.Context, key InstanceKey, now time.Time) (Decision, time.Time, error) {
	p := s.pair(key.TemplateID, key.RecordID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelled && key.Generation <= p.generation {
		return DecisionCancelled, time.Time{}, nil
	}

	sub := instanceSubKey{level: key.Level, recipientKey: key.RecipientKey, generation: key.Generation}
	prev, exists := p.lastSent[sub]
	if exists && now.Sub(prev) < SuppressionWindow {
		return DecisionDuplicate, prev, nil
	}

	p.lastSent[sub] = now
	return DecisionProceed, prev, nil
}

// Rollback trả lastSentAt về giá trị trước Reserve
func (s *MemoryStateStore) Rollback(_ context.Context, key InstanceKey, prev time.Time) error {
	p := s.pair(key.TemplateID, key.RecordID)
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := instanceSubKey{level: key.Level, recipientKey: key.RecipientKey, generation: key.Generation}
	if prev.IsZero() {
		delete(p.lastSent, sub)
		return nil
	}
	p.lastSent[sub] = prev
	return nil
}

// HasSent kiểm tra level đã gửi cho recipient nào trong episode chưa (read-only)
func (s *MemoryStateStore) HasSent(_ context.Context, templateID, recordID string, level int, generation int64) (bool, error) {
	p, ok := s.peek(templateID, recordID)
	if !ok {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub, sentAt := range p.lastSent {
		if sub.level == level && sub.generation == generation && !sentAt.IsZero() {
			return true, nil
		}
	}
	return false, nil
}

// Evict dọn các instance có lastSentAt cũ hơn olderThan
func (s *MemoryStateStore) Evict(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	pairs := make([]*pairState, 0, len(s.pairs))
	for _, p := range s.pairs {
		pairs = append(pairs, p)
	}
	s.mu.Unlock()

	var evicted int64
	for _, p := range pairs {
		p.mu.Lock()
		for sub, sentAt := range p.lastSent {
			if sentAt.Before(olderThan) {
				delete(p.lastSent, sub)
				evicted++
			}
		}
		p.mu.Unlock()
	}
	return evicted, nil
}
