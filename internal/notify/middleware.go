package notify

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited は外部送信の上限に達したときに返ります。
var ErrRateLimited = errors.New("notification rate limit reached")

// WithTimeout は1回の通知に上限時間を設けます。
func WithTimeout(next Notifier, d time.Duration) Notifier {
	if d <= 0 {
		return next
	}
	return NotifierFunc(func(ctx context.Context, n Notification) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Notify(ctx, n)
	})
}

// RateLimited は全体で1分あたり perMinute 件までに送信を制限します。
// 上限を超えた分は待たずに ErrRateLimited で失敗させます。
func RateLimited(next Notifier, perMinute int) Notifier {
	if perMinute <= 0 {
		return next
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return NotifierFunc(func(ctx context.Context, n Notification) error {
		if !lim.Allow() {
			return ErrRateLimited
		}
		return next.Notify(ctx, n)
	})
}
