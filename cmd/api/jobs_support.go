package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/portfolio-site/internal/config"
	"github.com/yourusername/portfolio-site/internal/jobs"
	"github.com/yourusername/portfolio-site/internal/notify"
	"github.com/yourusername/portfolio-site/internal/ratelimit"
)

func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// setupLimiter は RATE_LIMIT_BACKEND に応じた Limiter を作成します。
// メモリ実装の場合は ctx が終わるまで掃除用 goroutine を動かします。
func setupLimiter(ctx context.Context, cfg *config.Config, rdb *redis.Client) (ratelimit.Limiter, error) {
	switch cfg.RateLimitBackend {
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis client is required for the redis rate limit backend")
		}
		return ratelimit.NewRedisLimiter(ctx, rdb, cfg.RateLimitWindow, cfg.RateLimitMax)
	default:
		limiter := ratelimit.NewMemoryLimiter(
			cfg.RateLimitWindow,
			cfg.RateLimitMax,
			ratelimit.WithMaxTracked(cfg.RateLimitMaxTracked),
		)
		limiter.StartJanitor(ctx, cfg.RateLimitSweepInterval)
		return limiter, nil
	}
}

// setupNotifier は申請通知の送信先を組み立てます。
// NOTIFY_QUEUE=true の場合はキュー経由にし、ワーカー側が実際の送信先を使います。
func setupNotifier(cfg *config.Config, rdb *redis.Client) (notify.Notifier, *jobs.Manager, error) {
	delivery, err := newDeliveryNotifier(cfg)
	if err != nil {
		return nil, nil, err
	}
	delivery = notify.RateLimited(notify.WithTimeout(delivery, cfg.NotifyTimeout), cfg.NotifyMaxPerMinute)

	if !cfg.NotifyQueue {
		return delivery, nil, nil
	}
	if rdb == nil {
		return nil, nil, errors.New("redis client is required when NOTIFY_QUEUE is enabled")
	}

	store := jobs.NewStore(rdb, cfg.NotifyRecordTTL)
	manager, err := jobs.NewManager(cfg.RedisURL, store, delivery, log.Default())
	if err != nil {
		return nil, nil, err
	}
	// 投入自体にもタイムアウトをかける
	return notify.WithTimeout(manager, cfg.NotifyTimeout), manager, nil
}

func newDeliveryNotifier(cfg *config.Config) (notify.Notifier, error) {
	switch cfg.NotifyDriver {
	case "log":
		return &notify.LogNotifier{Logger: log.Default()}, nil
	case "webhook":
		return &notify.WebhookNotifier{
			URL:    cfg.NotifyWebhookURL,
			Client: &http.Client{Timeout: cfg.NotifyTimeout},
		}, nil
	case "smtp":
		return &notify.SMTPNotifier{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.NotifyEmailFrom,
			To:       cfg.NotifyEmailTo,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported notify driver: %s", cfg.NotifyDriver)
	}
}
