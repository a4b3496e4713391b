package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "notify:"
	maxTxRetries    = 5
)

// Store は配信状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は配信状態を取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	if requestID == "" {
		return nil, fmt.Errorf("requestID is required")
	}
	data, err := s.rdb.Get(ctx, recordKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert は配信状態を保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, recordKey(record.RequestID), payload, s.ttl).Err()
}

// MarkAttempt は配信試行回数を1つ増やします。
func (s *Store) MarkAttempt(ctx context.Context, requestID string) error {
	return s.updatePartial(ctx, requestID, func(record *Record) {
		record.Attempts++
	})
}

// MarkSent は配信完了を保存します。
func (s *Store) MarkSent(ctx context.Context, requestID string) error {
	return s.updatePartial(ctx, requestID, func(record *Record) {
		record.Status = StatusSent
		record.Error = nil
	})
}

// MarkFailed は配信失敗を保存します。
func (s *Store) MarkFailed(ctx context.Context, requestID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, requestID, func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

func (s *Store) updatePartial(ctx context.Context, requestID string, mutate func(*Record)) error {
	key := recordKey(requestID)
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return fmt.Errorf("notification record not found: %s", requestID)
				}
				return err
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			mutate(&record)
			record.UpdatedAt = time.Now().UTC()
			payload, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("notification record update conflicted: %s", requestID)
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}
