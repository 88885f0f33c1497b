// Package escalation - Test orchestrator end-to-end trên fakes: dispatch, suppression,
// cancellation, cô lập lỗi per-pair và simulate không side effect.
package escalation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	escmodels "safety_ops/internal/api/escalation/models"
)

// fakeStore là RecordStore trong memory cho test
type fakeStore struct {
	mu        sync.Mutex
	templates map[string][]escmodels.EscalationTemplate
	records   map[string][]escmodels.Record
	users     []escmodels.User
	logs      []escmodels.NotificationLogEntry

	usersErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: make(map[string][]escmodels.EscalationTemplate),
		records:   make(map[string][]escmodels.Record),
	}
}

func (f *fakeStore) TemplatesFor(_ context.Context, module string) ([]escmodels.EscalationTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates[module], nil
}

func (f *fakeStore) RecordsFor(_ context.Context, module string) ([]escmodels.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[module], nil
}

func (f *fakeStore) UsersByRole(_ context.Context, role, department string) ([]escmodels.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	var out []escmodels.User
	for _, u := range f.users {
		if !u.Active {
			continue
		}
		if department != "" && u.Department != "" && u.Department != department {
			continue
		}
		for _, r := range u.Roles {
			if r == role {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) AppendLog(_ context.Context, entry escmodels.NotificationLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeStore) logsByStatus(status string) []escmodels.NotificationLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []escmodels.NotificationLogEntry
	for _, l := range f.logs {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

// fakeChannel là DeliveryChannel ghi nhận các lần gửi
type fakeChannel struct {
	mu     sync.Mutex
	emails []string // recipient keys đã nhận email
	sms    []string
	fail   map[string]error // recipient key -> lỗi giả lập
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{fail: make(map[string]error)}
}

func (f *fakeChannel) SendEmail(_ context.Context, r Recipient, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[r.Key]; err != nil {
		return err
	}
	f.emails = append(f.emails, r.Key)
	return nil
}

func (f *fakeChannel) SendSMS(_ context.Context, r Recipient, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[r.Key]; err != nil {
		return err
	}
	f.sms = append(f.sms, r.Key)
	return nil
}

func (f *fakeChannel) emailCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emails)
}

// testTemplate dựng một template incidents một level, một time trigger quá hạn
func testTemplate() escmodels.EscalationTemplate {
	return escmodels.EscalationTemplate{
		ID:     primitive.NewObjectID(),
		Name:   "Sự cố quá hạn",
		Module: escmodels.ModuleIncidents,
		Active: true,
		ApplicabilityRules: []escmodels.EscalationRule{
			{Field: "priority", Operator: escmodels.OperatorEquals, Value: "High"},
		},
		Hierarchy: []escmodels.HierarchyLevel{
			{Level: 1, Roles: []string{"supervisor"}},
			{Level: 2, Roles: []string{"manager"}, FallbackEmail: "safety@example.com"},
		},
		Triggers: []escmodels.EscalationTrigger{
			{Kind: escmodels.TriggerKindTime, Level: 1, ReferenceField: "dueDate", DaysAfter: 1},
		},
		NotificationTemplates: escmodels.NotificationTemplates{
			EmailSubject: "Sự cố {{title}} quá hạn",
			EmailBody:    "Sự cố {{title}} đã quá hạn xử lý.",
			SMSBody:      "Sự cố {{title}} quá hạn",
		},
	}
}

func testRecord(id string) escmodels.Record {
	return escmodels.Record{
		"id":       id,
		"title":    "Tràn hóa chất",
		"priority": "High",
		"status":   "Open",
		"dueDate":  "2025-12-01T00:00:00Z",
	}
}

func newTestOrchestrator(store *fakeStore, channel *fakeChannel, state StateStore) *Orchestrator {
	return NewOrchestrator(store, channel, state, OrchestratorConfig{
		BaseURL: "http://localhost:3000",
		Workers: 4,
	})
}

func TestProcessEscalations_SendsAndLogs(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	tmpl := testTemplate()
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{tmpl}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{testRecord("inc-1")}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")
	o.ProcessEscalations(context.Background(), now)

	require.Equal(t, []string{"an@example.com"}, channel.emails)
	sent := store.logsByStatus(escmodels.LogStatusSent)
	require.Len(t, sent, 1)
	assert.Equal(t, tmpl.ID.Hex(), sent[0].TemplateID)
	assert.Equal(t, "inc-1", sent[0].RecordID)
	assert.Equal(t, 1, sent[0].Level)
	assert.Equal(t, "an@example.com", sent[0].Recipient)
}

func TestProcessEscalations_DuplicateSuppression(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{testTemplate()}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{testRecord("inc-1")}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")

	o.ProcessEscalations(context.Background(), now)
	// Cycle sau trong cùng window: suppress, log duplicate
	o.ProcessEscalations(context.Background(), now.Add(5*time.Minute))
	require.Equal(t, 1, channel.emailCount(), "trong suppression window chỉ được gửi một lần")
	require.Len(t, store.logsByStatus(escmodels.LogStatusDuplicate), 1)

	// Sau khi window trôi qua: gửi lại
	o.ProcessEscalations(context.Background(), now.Add(SuppressionWindow+time.Minute))
	assert.Equal(t, 2, channel.emailCount(), "hết window phải gửi lại")
}

// Window chỉ slide khi gửi thật: check bị suppress không refresh lastSentAt
func TestProcessEscalations_SuppressedCheckDoesNotSlideWindow(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{testTemplate()}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{testRecord("inc-1")}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")

	o.ProcessEscalations(context.Background(), now)
	// Check liên tục gần cuối window - nếu mỗi check refresh window thì lần
	// check sau window gốc sẽ vẫn bị suppress mãi
	o.ProcessEscalations(context.Background(), now.Add(23*time.Hour))
	o.ProcessEscalations(context.Background(), now.Add(23*time.Hour+30*time.Minute))
	require.Equal(t, 1, channel.emailCount())

	o.ProcessEscalations(context.Background(), now.Add(SuppressionWindow+time.Minute))
	assert.Equal(t, 2, channel.emailCount(), "window phải tính từ lần GỬI cuối, không phải lần check cuối")
}

func TestProcessEscalations_DeliveryFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	channel.fail["an@example.com"] = fmt.Errorf("gateway 503")
	state := NewMemoryStateStore()

	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{testTemplate()}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{testRecord("inc-1")}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")
	o.ProcessEscalations(context.Background(), now)

	failed := store.logsByStatus(escmodels.LogStatusFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "gateway 503")

	// Rollback xong thì cycle sau retry được ngay (không bị coi là duplicate)
	delete(channel.fail, "an@example.com")
	o.ProcessEscalations(context.Background(), now.Add(5*time.Minute))
	assert.Equal(t, 1, channel.emailCount(), "sau rollback cycle sau phải gửi được")
	assert.Empty(t, store.logsByStatus(escmodels.LogStatusDuplicate))
}

// SMS sau khi expand placeholder có thể vượt giới hạn dù template thô đã qua
// validation lúc lưu: không được gửi, log failed để admin thấy
func TestProcessEscalations_OversizedRenderedSMSNotSent(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	record := testRecord("inc-1")
	record["title"] = strings.Repeat("Tràn hóa chất khu vực kho ", 10)
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{testTemplate()}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{record}
	// Recipient chỉ có phone: bắt buộc đi đường SMS
	store.users = []escmodels.User{
		{Name: "An", Phone: "+84901234567", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	o.ProcessEscalations(context.Background(), mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z"))

	assert.Empty(t, channel.sms, "SMS vượt giới hạn sau khi render không được gửi")
	failed := store.logsByStatus(escmodels.LogStatusFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "vượt giới hạn")
}

func TestProcessEscalations_CompletionCancels(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	record := testRecord("inc-1")
	record["status"] = "Closed"
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{testTemplate()}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{record}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")
	o.ProcessEscalations(context.Background(), now)

	assert.Zero(t, channel.emailCount(), "record đã hoàn tất không được gửi gì")
	require.Len(t, store.logsByStatus(escmodels.LogStatusCancelled), 1)

	// Cancel idempotent: cycle sau không ghi thêm log entry cancelled
	o.ProcessEscalations(context.Background(), now.Add(5*time.Minute))
	assert.Len(t, store.logsByStatus(escmodels.LogStatusCancelled), 1)
}

// Cancellation không phụ thuộc applicability: record đóng thường hết match
// rules (vd rule "status equals Open") nhưng vẫn phải được hủy và log
func TestProcessEscalations_CompletionCancelsEvenWhenRulesStopMatching(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	tmpl := testTemplate()
	tmpl.ApplicabilityRules = []escmodels.EscalationRule{
		{Field: "status", Operator: escmodels.OperatorEquals, Value: "Open"},
	}
	record := testRecord("inc-1")
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{tmpl}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{record}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")
	o.ProcessEscalations(context.Background(), now)
	require.Equal(t, 1, channel.emailCount())

	// Record đóng: không còn match rule "status equals Open" nhưng vẫn phải hủy
	record["status"] = "Closed"
	o.ProcessEscalations(context.Background(), now.Add(time.Hour))
	require.Len(t, store.logsByStatus(escmodels.LogStatusCancelled), 1,
		"cancellation phải chạy cả khi rules hết match record")

	ep, err := state.CurrentEpisode(context.Background(), tmpl.ID.Hex(), "inc-1")
	require.NoError(t, err)
	assert.True(t, ep.Cancelled, "episode phải được đánh dấu cancelled")

	// Reopen trong suppression window: episode mới, gửi lại từ đầu
	record["status"] = "Open"
	o.ProcessEscalations(context.Background(), now.Add(2*time.Hour))
	assert.Equal(t, 2, channel.emailCount(), "reopen phải mở episode mới và gửi lại")
}

// Record reopen sau khi hoàn tất: mở episode mới, chuỗi escalation chạy lại
func TestProcessEscalations_ReopenStartsNewEpisode(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	record := testRecord("inc-1")
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{testTemplate()}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{record}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")

	// Gửi lần đầu, rồi record được đóng, rồi reopen
	o.ProcessEscalations(context.Background(), now)
	require.Equal(t, 1, channel.emailCount())

	record["status"] = "Closed"
	o.ProcessEscalations(context.Background(), now.Add(time.Hour))
	require.Len(t, store.logsByStatus(escmodels.LogStatusCancelled), 1)

	record["status"] = "Open"
	o.ProcessEscalations(context.Background(), now.Add(2*time.Hour))
	// Episode mới có generation khác nên instance key cũ không suppress
	assert.Equal(t, 2, channel.emailCount(), "sau reopen chuỗi escalation phải chạy lại từ đầu")
}

func TestProcessEscalations_MissingHierarchyFallback(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	tmpl := testTemplate()
	// Trigger level 2: supervisor không có user, level 2 có fallback
	tmpl.Triggers = []escmodels.EscalationTrigger{
		{Kind: escmodels.TriggerKindTime, Level: 2, ReferenceField: "dueDate", DaysAfter: 1},
	}
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{tmpl}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{testRecord("inc-1")}
	// Không có user nào với role manager

	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")
	o.ProcessEscalations(context.Background(), now)

	require.Equal(t, []string{"safety@example.com"}, channel.emails, "phải gửi cho fallback email")
	sent := store.logsByStatus(escmodels.LogStatusSent)
	require.Len(t, sent, 1)
	assert.Equal(t, 2, sent[0].Level)
}

func TestProcessEscalations_NoRecipientsLogsFailed(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	tmpl := testTemplate()
	tmpl.Hierarchy = []escmodels.HierarchyLevel{{Level: 1, Roles: []string{"supervisor"}}}
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{tmpl}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{testRecord("inc-1")}
	// Không có user, không có fallback

	o := newTestOrchestrator(store, channel, state)
	o.ProcessEscalations(context.Background(), mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z"))

	assert.Zero(t, channel.emailCount())
	failed := store.logsByStatus(escmodels.LogStatusFailed)
	require.Len(t, failed, 1, "routing failure phải được log, không drop im lặng")
	assert.Contains(t, failed[0].Error, WarnMissingHierarchy)
}

// Lỗi của một record không được chặn các record còn lại trong batch
func TestProcessEscalations_PairErrorIsolation(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	broken := escmodels.Record{ // Không có id: processPair trả lỗi
		"priority": "High",
		"status":   "Open",
		"dueDate":  "2025-12-01T00:00:00Z",
	}
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{testTemplate()}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{broken, testRecord("inc-2")}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	o.ProcessEscalations(context.Background(), mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z"))

	sent := store.logsByStatus(escmodels.LogStatusSent)
	require.Len(t, sent, 1, "record hỏng không được chặn record lành")
	assert.Equal(t, "inc-2", sent[0].RecordID)
}

func TestProcessEscalations_InactiveTemplateSkipped(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	tmpl := testTemplate()
	tmpl.Active = false
	store.templates[escmodels.ModuleIncidents] = []escmodels.EscalationTemplate{tmpl}
	store.records[escmodels.ModuleIncidents] = []escmodels.Record{testRecord("inc-1")}
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	o := newTestOrchestrator(store, channel, state)
	o.ProcessEscalations(context.Background(), mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z"))

	assert.Zero(t, channel.emailCount())
	assert.Empty(t, store.logs)
}

func TestSimulate_ReadOnly(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	tmpl := testTemplate()
	record := testRecord("inc-1")
	o := newTestOrchestrator(store, channel, state)
	store.users = []escmodels.User{
		{Name: "An", Email: "an@example.com", Roles: []string{"supervisor"}, Active: true},
	}

	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")
	results, err := o.Simulate(context.Background(), tmpl, record, now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SimStatusWouldFire, results[0].Status)
	require.NotNil(t, results[0].TriggerDate)
	assert.Equal(t, mustTime(t, time.RFC3339, "2025-12-02T00:00:00Z"), *results[0].TriggerDate)

	// Không side effect: không gửi, không log, không ghi state
	assert.Zero(t, channel.emailCount())
	assert.Empty(t, store.logs)
	sent, err := state.HasSent(context.Background(), tmpl.ID.Hex(), "inc-1", 1, 1)
	require.NoError(t, err)
	assert.False(t, sent, "simulate không được ghi state")

	// Idempotent: chạy lại cho kết quả giống hệt
	again, err := o.Simulate(context.Background(), tmpl, record, now)
	require.NoError(t, err)
	assert.Equal(t, results, again)
}

func TestSimulate_Statuses(t *testing.T) {
	store := newFakeStore()
	channel := newFakeChannel()
	state := NewMemoryStateStore()

	tmpl := testTemplate()
	record := testRecord("inc-1")
	o := newTestOrchestrator(store, channel, state)
	now := mustTime(t, time.RFC3339, "2025-12-10T00:00:00Z")
	ctx := context.Background()

	// Not Applicable
	notMatching := testRecord("inc-2")
	notMatching["priority"] = "Low"
	results, err := o.Simulate(ctx, tmpl, notMatching, now)
	require.NoError(t, err)
	assert.Equal(t, SimStatusNotApplicable, results[0].Status)

	// Would Not Fire: chưa tới trigger date
	results, err = o.Simulate(ctx, tmpl, record, mustTime(t, time.RFC3339, "2025-12-01T12:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, SimStatusWouldNotFire, results[0].Status)

	// Already Triggered: level đã gửi trong episode hiện hành
	_, _, err = state.Reserve(ctx, InstanceKey{
		TemplateID: tmpl.ID.Hex(), RecordID: "inc-1", Level: 1,
		RecipientKey: "an@example.com", Generation: 1,
	}, now)
	require.NoError(t, err)
	results, err = o.Simulate(ctx, tmpl, record, now)
	require.NoError(t, err)
	assert.Equal(t, SimStatusAlreadyTriggered, results[0].Status)

	// Error: reference date hỏng, trả nguyên văn lỗi
	broken := testRecord("inc-3")
	broken["dueDate"] = "2025-02-30"
	results, err = o.Simulate(ctx, tmpl, broken, now)
	require.NoError(t, err)
	assert.Equal(t, SimStatusError, results[0].Status)
	assert.Contains(t, results[0].Error, "2025-02-30")
}
