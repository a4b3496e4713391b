package notify

import (
	"context"
	"log"
)

// LogNotifier は通知内容をログに出力するだけの実装です（開発用）。
type LogNotifier struct {
	Logger *log.Logger
}

// Notify は Notifier を実装します。
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("download request id=%s name=%q email=%q reason=%q", n.RequestID, n.FullName, n.Email, n.Reason)
	return nil
}
