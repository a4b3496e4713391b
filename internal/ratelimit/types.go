// Package ratelimit はクライアントIPごとのスライディングウィンドウ型レート制限を提供します。
package ratelimit

import (
	"context"
	"time"
)

// UnknownKey はクライアントIPが解決できなかったリクエストをまとめて数えるキーです。
// 該当するクライアントは1つの枠を共有します。
const UnknownKey = "unknown"

// Decision はレート制限の判定結果です。
type Decision struct {
	Allowed bool
	// Count はウィンドウ内のリクエスト数（許可された場合は今回分を含む）です。
	Count int
	Limit int
	// RetryAfter は拒否時に Retry-After として返す待ち時間です。
	RetryAfter time.Duration
}

// Limiter はキーごとにリクエストを許可するかを判定します。
// 許可した場合は now をそのキーの履歴に記録します。
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}
