package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter はプロセス内のマップにタイムスタンプ（ミリ秒）を保持する実装です。
// 古いタイムスタンプは参照時に取り除きます。
type MemoryLimiter struct {
	mu         sync.Mutex
	records    map[string][]int64
	window     time.Duration
	max        int
	maxTracked int
}

// MemoryOption は MemoryLimiter の任意設定です。
type MemoryOption func(*MemoryLimiter)

// WithMaxTracked は追跡するキー数の上限を設定します（0以下で無制限）。
func WithMaxTracked(n int) MemoryOption {
	return func(m *MemoryLimiter) { m.maxTracked = n }
}

// NewMemoryLimiter は window 内に max 件までを許可する MemoryLimiter を作成します。
func NewMemoryLimiter(window time.Duration, max int, opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		records: make(map[string][]int64),
		window:  window,
		max:     max,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow は Limiter を実装します。
func (m *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	if key == "" {
		key = UnknownKey
	}
	nowMs := now.UnixMilli()
	windowStart := nowMs - m.window.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	stamps, tracked := m.records[key]
	recent := pruneBefore(stamps, windowStart)

	if len(recent) >= m.max {
		m.records[key] = recent
		return Decision{
			Allowed:    false,
			Count:      len(recent),
			Limit:      m.max,
			RetryAfter: m.window,
		}, nil
	}

	if !tracked && m.maxTracked > 0 && len(m.records) >= m.maxTracked {
		m.makeRoom(windowStart)
	}

	recent = append(recent, nowMs)
	m.records[key] = recent
	return Decision{
		Allowed: true,
		Count:   len(recent),
		Limit:   m.max,
	}, nil
}

// Sweep はウィンドウ内に記録が残っていないキーを削除し、削除数を返します。
func (m *MemoryLimiter) Sweep(now time.Time) int {
	windowStart := now.UnixMilli() - m.window.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(windowStart)
}

// Len は現在追跡しているキー数を返します。
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// StartJanitor は every ごとに Sweep を実行するゴルーチンを起動します。
// ctx をキャンセルすると停止します。
func (m *MemoryLimiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				m.Sweep(now)
			}
		}
	}()
}

func (m *MemoryLimiter) sweepLocked(windowStart int64) int {
	removed := 0
	for k, stamps := range m.records {
		if len(stamps) == 0 || stamps[len(stamps)-1] < windowStart {
			delete(m.records, k)
			removed++
		}
	}
	return removed
}

// makeRoom は上限到達時にキーを1つ以上空けます。
// まず期限切れのキーを掃除し、それでも足りなければ最終アクセスが最も古いキーを捨てます。
func (m *MemoryLimiter) makeRoom(windowStart int64) {
	if m.sweepLocked(windowStart) > 0 && len(m.records) < m.maxTracked {
		return
	}

	var (
		oldestKey  string
		oldestSeen int64
		found      bool
	)
	for k, stamps := range m.records {
		last := stamps[len(stamps)-1]
		if !found || last < oldestSeen {
			oldestKey, oldestSeen, found = k, last, true
		}
	}
	if found {
		delete(m.records, oldestKey)
	}
}

// pruneBefore は windowStart より古いタイムスタンプを取り除きます。
func pruneBefore(stamps []int64, windowStart int64) []int64 {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts >= windowStart {
			kept = append(kept, ts)
		}
	}
	return kept
}
