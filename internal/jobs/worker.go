package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/yourusername/portfolio-site/internal/notify"
)

func (m *Manager) handleNotifyTask(ctx context.Context, task *asynq.Task) error {
	var n notify.Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		return fmt.Errorf("invalid notify payload: %v: %w", err, asynq.SkipRetry)
	}
	if n.RequestID == "" {
		return fmt.Errorf("missing requestId in payload: %w", asynq.SkipRetry)
	}

	// 再配送されたタスクで二重に送信しない
	record, err := m.store.Get(ctx, n.RequestID)
	if err != nil {
		m.logger.Printf("failed to load record id=%s: %v", n.RequestID, err)
	} else if record != nil && record.Status == StatusSent {
		m.logger.Printf("notification already delivered id=%s; skipping", n.RequestID)
		return nil
	}

	if err := m.store.MarkAttempt(ctx, n.RequestID); err != nil {
		m.logger.Printf("failed to record attempt id=%s: %v", n.RequestID, err)
	}

	if err := m.delivery.Notify(ctx, n); err != nil {
		m.logger.Printf("notification delivery failed id=%s: %v", n.RequestID, err)
		if markErr := m.store.MarkFailed(ctx, n.RequestID, &ErrorInfo{
			Code:    "DELIVERY_FAILED",
			Message: err.Error(),
		}); markErr != nil {
			m.logger.Printf("failed to mark failure id=%s: %v", n.RequestID, markErr)
		}
		return err
	}

	if err := m.store.MarkSent(ctx, n.RequestID); err != nil {
		m.logger.Printf("failed to mark sent id=%s: %v", n.RequestID, err)
	}
	m.logger.Printf("notification delivered id=%s", n.RequestID)
	return nil
}
