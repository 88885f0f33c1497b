// Package worker chứa các background worker chạy định kỳ.
package worker

import (
	"context"
	"time"

	"safety_ops/internal/escalation"
	"safety_ops/internal/logger"
)

// EscalationCycleWorker chạy một escalation cycle định kỳ: quét toàn bộ
// (template, record) pairs của mọi module, đánh giá trigger và dispatch.
// Một cycle lỗi hoặc panic không được làm chết worker - cycle sau chạy tiếp.
type EscalationCycleWorker struct {
	orchestrator *escalation.Orchestrator
	interval     time.Duration // Khoảng thời gian giữa các cycle (vd: 5 phút)
}

// NewEscalationCycleWorker tạo worker mới.
//
// Tham số:
//   - orchestrator: Engine đã được wire với record store, delivery và state store
//   - interval: Khoảng cách giữa các cycle (mặc định: 5 phút)
func NewEscalationCycleWorker(orchestrator *escalation.Orchestrator, interval time.Duration) *EscalationCycleWorker {
	if interval < time.Minute {
		interval = 5 * time.Minute
	}
	return &EscalationCycleWorker{
		orchestrator: orchestrator,
		interval:     interval,
	}
}

// Start chạy worker trong vòng lặp cho đến khi ctx bị cancel.
func (w *EscalationCycleWorker) Start(ctx context.Context) {
	log := logger.GetAppLogger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithFields(map[string]interface{}{
		"interval": w.interval.String(),
	}).Info("🚨 [ESCALATION] Starting Escalation Cycle Worker...")

	for {
		select {
		case <-ctx.Done():
			log.Info("🚨 [ESCALATION] Escalation Cycle Worker stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithFields(map[string]interface{}{
							"panic": r,
						}).Error("🚨 [ESCALATION] Panic trong escalation cycle, sẽ tiếp tục ở cycle tiếp theo")
					}
				}()

				start := time.Now()
				w.orchestrator.ProcessEscalations(ctx, start)
				log.WithFields(map[string]interface{}{
					"durationMs": time.Since(start).Milliseconds(),
				}).Info("🚨 [ESCALATION] Escalation cycle hoàn tất")
			}()
		}
	}
}
