// Package jobs は通知の非同期配信（Asynq）と配信状態の管理を提供します。
package jobs

import "time"

// Status は通知の配信状態を表します。
type Status string

const (
	StatusQueued Status = "queued"
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// ErrorInfo は配信失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は通知1件の現在状態を表します。
type Record struct {
	RequestID string     `json:"requestId"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	Error     *ErrorInfo `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}
