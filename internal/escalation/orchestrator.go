package escalation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	escmodels "safety_ops/internal/api/escalation/models"
	"safety_ops/internal/logger"
)

// OrchestratorConfig cấu hình orchestrator
type OrchestratorConfig struct {
	BaseURL         string        // Base URL để build action links
	Workers         int           // Số (template, record) pairs xử lý song song
	DeliveryTimeout time.Duration // Timeout cho mỗi lần gọi delivery channel
}

// Orchestrator ghép các thành phần engine lại cho một processing cycle.
// Không giữ global mutable state nào ngoài StateStore được inject.
type Orchestrator struct {
	store    RecordStore
	channel  DeliveryChannel
	state    StateStore
	resolver *HierarchyResolver
	builder  *ContentBuilder
	cfg      OrchestratorConfig
}

// NewOrchestrator tạo mới Orchestrator
func NewOrchestrator(store RecordStore, channel DeliveryChannel, state StateStore, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	return &Orchestrator{
		store:    store,
		channel:  channel,
		state:    state,
		resolver: NewHierarchyResolver(store),
		builder:  NewContentBuilder(cfg.BaseURL),
		cfg:      cfg,
	}
}

// ProcessEscalations chạy một cycle: với mỗi template active × mỗi record trong
// module của nó, đánh giá applicability, trigger từng level, check
// cancellation/duplicate, resolve recipients, build content, gửi qua delivery
// channel và ghi log outcome từng recipient.
//
// Lỗi của một (template, record) pair được cô lập và log, KHÔNG dừng batch -
// đây là resilience contract, một record hỏng không được chặn các record còn lại.
// Các pair chạy song song trên worker pool có giới hạn; levels trong một pair
// chạy tuần tự theo thứ tự tăng dần.
func (o *Orchestrator) ProcessEscalations(ctx context.Context, now time.Time) {
	log := logger.GetAppLogger()

	for _, module := range Modules {
		templates, err := o.store.TemplatesFor(ctx, module)
		if err != nil {
			log.WithError(err).WithField("module", module).Error("🚨 [ESCALATION] Lỗi load templates, bỏ qua module trong cycle này")
			continue
		}
		if len(templates) == 0 {
			continue
		}

		records, err := o.store.RecordsFor(ctx, module)
		if err != nil {
			log.WithError(err).WithField("module", module).Error("🚨 [ESCALATION] Lỗi load records, bỏ qua module trong cycle này")
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Workers)

		for _, tmpl := range templates {
			if !tmpl.Active {
				continue
			}
			for _, record := range records {
				tmpl, record := tmpl, record
				g.Go(func() error {
					defer func() {
						if r := recover(); r != nil {
							log.WithFields(map[string]interface{}{
								"templateId": tmpl.ID.Hex(),
								"recordId":   record.ID(),
								"panic":      r,
							}).Error("🚨 [ESCALATION] Panic khi xử lý pair, cô lập và tiếp tục batch")
						}
					}()
					if err := o.processPair(gctx, tmpl, record, now); err != nil {
						log.WithError(err).WithFields(map[string]interface{}{
							"templateId": tmpl.ID.Hex(),
							"recordId":   record.ID(),
						}).Error("🚨 [ESCALATION] Lỗi khi xử lý pair, cô lập và tiếp tục batch")
					}
					// Luôn trả về nil: lỗi per-pair không được hủy group
					return nil
				})
			}
		}

		_ = g.Wait()
	}
}

// processPair xử lý một (template, record) pair trong một cycle
func (o *Orchestrator) processPair(ctx context.Context, tmpl escmodels.EscalationTemplate, record escmodels.Record, now time.Time) error {
	templateID := tmpl.ID.Hex()
	recordID := record.ID()
	if recordID == "" {
		return fmt.Errorf("record không có id")
	}

	log := logger.GetAppLogger()

	// Record đã hoàn tất => hủy toàn bộ escalation của pair ngay lập tức.
	// Check này đứng TRƯỚC applicability: record đóng thường không còn match
	// rules (vd rule "status equals Open") nhưng cancellation vẫn phải chạy.
	status := record.StringField("status")
	if IsCompletionStatus(tmpl.Module, status) {
		newly, err := o.state.Cancel(ctx, templateID, recordID, now)
		if err != nil {
			return fmt.Errorf("cancel pair thất bại: %w", err)
		}
		if newly {
			log.WithFields(map[string]interface{}{
				"templateId": templateID,
				"recordId":   recordID,
				"status":     status,
			}).Info("🚨 [ESCALATION] Record đã hoàn tất, hủy escalation của pair")
			o.appendLog(ctx, escmodels.NotificationLogEntry{
				TemplateID: templateID,
				RecordID:   recordID,
				Recipient:  "",
				Status:     escmodels.LogStatusCancelled,
				Timestamp:  now.Unix(),
			})
		}
		return nil
	}

	if !Applies(tmpl.ApplicabilityRules, record) {
		return nil
	}

	episode, err := o.state.CurrentEpisode(ctx, templateID, recordID)
	if err != nil {
		return fmt.Errorf("đọc episode thất bại: %w", err)
	}
	if episode.Cancelled {
		// Record đã reopen sau khi hoàn tất: cancellation là terminal cho
		// episode cũ, mở episode mới để chuỗi escalation chạy lại từ đầu
		episode, err = o.state.OpenNewEpisode(ctx, templateID, recordID)
		if err != nil {
			return fmt.Errorf("mở episode mới thất bại: %w", err)
		}
		log.WithFields(map[string]interface{}{
			"templateId": templateID,
			"recordId":   recordID,
			"generation": episode.Generation,
		}).Info("🚨 [ESCALATION] Record reopen, mở episode mới")
	}

	for _, level := range triggerLevels(tmpl) {
		fired := false
		for _, trigger := range tmpl.Triggers {
			if trigger.Level != level {
				continue
			}
			ok, err := Fires(trigger, record, now)
			if err != nil {
				// Data-quality warning, không phải lỗi pair: trigger coi như không fire
				log.WithError(err).WithFields(map[string]interface{}{
					"templateId":     templateID,
					"recordId":       recordID,
					"level":          level,
					"referenceField": trigger.ReferenceField,
				}).Warn("🚨 [ESCALATION] Trigger không đánh giá được, coi như không fire")
				continue
			}
			if ok {
				fired = true
				break
			}
		}
		if !fired {
			continue
		}

		if err := o.dispatchLevel(ctx, tmpl, record, level, episode, now); err != nil {
			return err
		}
	}

	return nil
}

// dispatchLevel resolve recipients và gửi thông báo cho một level đã fire
func (o *Orchestrator) dispatchLevel(ctx context.Context, tmpl escmodels.EscalationTemplate, record escmodels.Record, level int, episode Episode, now time.Time) error {
	templateID := tmpl.ID.Hex()
	recordID := record.ID()
	log := logger.GetAppLogger()

	hierLevel, ok := hierarchyLevel(tmpl, level)
	if !ok {
		// Validation chặn từ lúc save; nhánh này chỉ gặp với template cũ hỏng
		log.WithFields(map[string]interface{}{
			"templateId": templateID,
			"level":      level,
		}).Warn("🚨 [ESCALATION] Trigger tham chiếu level không có trong hierarchy, bỏ qua")
		return nil
	}

	recipients, warnings, err := o.resolver.Resolve(ctx, hierLevel, record)
	if err != nil {
		return fmt.Errorf("resolve hierarchy level %d thất bại: %w", level, err)
	}
	for _, w := range warnings {
		log.WithFields(map[string]interface{}{
			"templateId": templateID,
			"recordId":   recordID,
			"level":      level,
			"role":       w.Role,
			"department": w.Department,
		}).Warn("🚨 [ESCALATION] " + w.Code + ": " + w.Message)
	}

	if len(recipients) == 0 {
		// Routing failure: escalation coi như chưa gửi cho level này, cycle sau
		// retry (không cancelled). Log thay vì drop im lặng.
		o.appendLog(ctx, escmodels.NotificationLogEntry{
			TemplateID: templateID,
			RecordID:   recordID,
			Level:      level,
			Recipient:  "",
			Status:     escmodels.LogStatusFailed,
			Timestamp:  now.Unix(),
			Error:      WarnMissingHierarchy + ": không resolve được recipient nào và không có fallback",
		})
		return nil
	}

	content := o.builder.Build(tmpl, record, level)

	for _, recipient := range recipients {
		o.dispatchRecipient(ctx, templateID, recordID, level, episode, recipient, content, now)
	}
	return nil
}

// dispatchRecipient gửi cho một recipient: reserve (atomic decide-and-mark),
// gửi ngoài lock với timeout riêng, rollback khi thất bại.
func (o *Orchestrator) dispatchRecipient(ctx context.Context, templateID, recordID string, level int, episode Episode, recipient Recipient, content Content, now time.Time) {
	log := logger.GetAppLogger()
	audit := logger.GetAuditLogger()

	key := InstanceKey{
		TemplateID:   templateID,
		RecordID:     recordID,
		Level:        level,
		RecipientKey: recipient.Key,
		Generation:   episode.Generation,
	}

	decision, prev, err := o.state.Reserve(ctx, key, now)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"templateId": templateID,
			"recordId":   recordID,
			"level":      level,
			"recipient":  recipient.Key,
		}).Error("🚨 [ESCALATION] Reserve thất bại, bỏ qua recipient trong cycle này")
		return
	}

	switch decision {
	case DecisionDuplicate:
		o.appendLog(ctx, escmodels.NotificationLogEntry{
			TemplateID: templateID,
			RecordID:   recordID,
			Level:      level,
			Recipient:  recipient.Key,
			Status:     escmodels.LogStatusDuplicate,
			Timestamp:  now.Unix(),
		})
		return

	case DecisionCancelled:
		o.appendLog(ctx, escmodels.NotificationLogEntry{
			TemplateID: templateID,
			RecordID:   recordID,
			Level:      level,
			Recipient:  recipient.Key,
			Status:     escmodels.LogStatusCancelled,
			Timestamp:  now.Unix(),
		})
		return
	}

	// Gửi ngoài lock, timeout riêng cho từng lần gọi channel
	deliverCtx, cancel := context.WithTimeout(ctx, o.cfg.DeliveryTimeout)
	deliverErr := o.deliver(deliverCtx, recipient, content)
	cancel()

	if deliverErr != nil {
		// Delivery thất bại: trả lastSentAt về giá trị cũ để cycle sau retry.
		// Engine không tự retry - retry policy thuộc về channel bên ngoài.
		if rbErr := o.state.Rollback(ctx, key, prev); rbErr != nil {
			log.WithError(rbErr).WithFields(map[string]interface{}{
				"templateId": templateID,
				"recordId":   recordID,
				"recipient":  recipient.Key,
			}).Error("🚨 [ESCALATION] Rollback reservation thất bại")
		}
		o.appendLog(ctx, escmodels.NotificationLogEntry{
			TemplateID: templateID,
			RecordID:   recordID,
			Level:      level,
			Recipient:  recipient.Key,
			Status:     escmodels.LogStatusFailed,
			Timestamp:  now.Unix(),
			Error:      deliverErr.Error(),
		})
		log.WithError(deliverErr).WithFields(map[string]interface{}{
			"templateId": templateID,
			"recordId":   recordID,
			"level":      level,
			"recipient":  recipient.Key,
		}).Error("🚨 [ESCALATION] Delivery thất bại")
		return
	}

	o.appendLog(ctx, escmodels.NotificationLogEntry{
		TemplateID: templateID,
		RecordID:   recordID,
		Level:      level,
		Recipient:  recipient.Key,
		Status:     escmodels.LogStatusSent,
		Timestamp:  now.Unix(),
	})
	audit.WithFields(map[string]interface{}{
		"templateId": templateID,
		"recordId":   recordID,
		"level":      level,
		"recipient":  recipient.Key,
		"priority":   content.Priority,
	}).Info("🚨 [ESCALATION] Đã gửi thông báo")
}

// deliver gửi qua channel phù hợp: ưu tiên email, fallback SMS
func (o *Orchestrator) deliver(ctx context.Context, recipient Recipient, content Content) error {
	if recipient.Email != "" {
		body := content.Body
		if content.ActionURL != "" {
			body = body + "\n\n" + content.ActionURL
		}
		return o.channel.SendEmail(ctx, recipient, content.Subject, body)
	}
	if recipient.Phone != "" && content.SMSBody != "" {
		// Validation lúc lưu template chỉ chặn được text thô; placeholder
		// expand lúc render vẫn có thể vượt giới hạn một SMS. Builder không
		// tự cắt nên chặn ở đây, log failed để admin thấy thay vì gửi hỏng.
		if len(content.SMSBody) > SMSMaxLength {
			return fmt.Errorf("SMS sau khi render dài %d ký tự, vượt giới hạn %d", len(content.SMSBody), SMSMaxLength)
		}
		return o.channel.SendSMS(ctx, recipient, content.SMSBody)
	}
	return fmt.Errorf("recipient %q không có email lẫn phone khả dụng", recipient.Key)
}

// appendLog ghi log entry; lỗi ghi log không được chặn cycle
func (o *Orchestrator) appendLog(ctx context.Context, entry escmodels.NotificationLogEntry) {
	if err := o.store.AppendLog(ctx, entry); err != nil {
		logger.GetErrorLogger().WithError(err).WithFields(map[string]interface{}{
			"templateId": entry.TemplateID,
			"recordId":   entry.RecordID,
			"status":     entry.Status,
		}).Error("🚨 [ESCALATION] Ghi log entry thất bại")
	}
}

// triggerLevels trả về các level được triggers tham chiếu, tăng dần, dedupe.
// Levels trong một pair luôn đánh giá theo thứ tự tăng dần để log nhất quán;
// level sau fire không suppress level trước.
func triggerLevels(tmpl escmodels.EscalationTemplate) []int {
	seen := make(map[int]bool)
	levels := make([]int, 0, len(tmpl.Triggers))
	for _, t := range tmpl.Triggers {
		if !seen[t.Level] {
			seen[t.Level] = true
			levels = append(levels, t.Level)
		}
	}
	sort.Ints(levels)
	return levels
}

// hierarchyLevel tìm HierarchyLevel theo số level
func hierarchyLevel(tmpl escmodels.EscalationTemplate, level int) (escmodels.HierarchyLevel, bool) {
	for _, h := range tmpl.Hierarchy {
		if h.Level == level {
			return h, true
		}
	}
	return escmodels.HierarchyLevel{}, false
}
