package worker

import (
	"context"
	"time"

	"safety_ops/internal/escalation"
	"safety_ops/internal/logger"
)

// InstanceCleanupWorker dọn các escalation instance có lastSentAt đã quá cũ.
// Instance chỉ cần sống lâu hơn suppression window để chống gửi trùng;
// giữ thêm một khoảng đệm lớn rồi xóa để collection không phình vô hạn.
type InstanceCleanupWorker struct {
	state     escalation.StateStore
	interval  time.Duration // Khoảng thời gian giữa các lần chạy (vd: 6h)
	retention time.Duration // Instance cũ hơn khoảng này sẽ bị xóa
}

// NewInstanceCleanupWorker tạo worker mới.
//
// Tham số:
//   - state: State store chứa instances
//   - interval: Khoảng cách giữa các lần chạy (mặc định: 6 giờ)
//   - retention: Thời gian giữ instance (mặc định: 30 ngày, tối thiểu
//     gấp đôi suppression window)
func NewInstanceCleanupWorker(state escalation.StateStore, interval, retention time.Duration) *InstanceCleanupWorker {
	if interval < time.Hour {
		interval = 6 * time.Hour
	}
	if retention < 2*escalation.SuppressionWindow {
		retention = 30 * 24 * time.Hour
	}
	return &InstanceCleanupWorker{
		state:     state,
		interval:  interval,
		retention: retention,
	}
}

// Start chạy worker trong vòng lặp cho đến khi ctx bị cancel.
func (w *InstanceCleanupWorker) Start(ctx context.Context) {
	log := logger.GetAppLogger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithFields(map[string]interface{}{
		"interval":  w.interval.String(),
		"retention": w.retention.String(),
	}).Info("🧹 [INSTANCE_CLEANUP] Starting Instance Cleanup Worker...")

	for {
		select {
		case <-ctx.Done():
			log.Info("🧹 [INSTANCE_CLEANUP] Instance Cleanup Worker stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithFields(map[string]interface{}{
							"panic": r,
						}).Error("🧹 [INSTANCE_CLEANUP] Panic khi cleanup instances, sẽ tiếp tục ở lần chạy tiếp theo")
					}
				}()

				evicted, err := w.state.Evict(ctx, time.Now().Add(-w.retention))
				if err != nil {
					log.WithError(err).Error("🧹 [INSTANCE_CLEANUP] Failed to evict old instances")
					return
				}

				if evicted > 0 {
					log.WithFields(map[string]interface{}{
						"evictedCount": evicted,
					}).Info("🧹 [INSTANCE_CLEANUP] Evicted old escalation instances")
				}
				// evicted = 0 thì không log (giảm log noise)
			}()
		}
	}
}
