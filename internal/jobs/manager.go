package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/portfolio-site/internal/notify"
)

const (
	taskTypeNotify = "notify:download-request"
	queueName      = "notify"
)

// recordStore は配信状態の保存先です（*Store が実装します）。
type recordStore interface {
	Get(ctx context.Context, requestID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	MarkAttempt(ctx context.Context, requestID string) error
	MarkSent(ctx context.Context, requestID string) error
	MarkFailed(ctx context.Context, requestID string, errInfo *ErrorInfo) error
}

// enqueuer は *asynq.Client のうち Manager が使う部分です。
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager は通知のキュー投入と配信を担います。notify.Notifier を実装するため、
// ダウンロード申請のハンドラーからは同期の通知先と同じように扱えます。
type Manager struct {
	client   enqueuer
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    recordStore
	delivery notify.Notifier
	logger   *log.Logger
}

var _ notify.Notifier = (*Manager)(nil)

// NewManager は Manager を初期化します。delivery はワーカーが実際に送信に使う通知先です。
func NewManager(redisURL string, store *Store, delivery notify.Notifier, logger *log.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if delivery == nil {
		return nil, errors.New("delivery notifier is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	manager := newManager(asynq.NewClient(opt), store, delivery, logger)
	manager.server = server
	return manager, nil
}

func newManager(client enqueuer, store recordStore, delivery notify.Notifier, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		client:   client,
		mux:      asynq.NewServeMux(),
		store:    store,
		delivery: delivery,
		logger:   logger,
	}
	m.mux.HandleFunc(taskTypeNotify, m.handleNotifyTask)
	return m
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	if m.server == nil {
		return
	}
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.server != nil {
		m.server.Shutdown()
	}
	return m.client.Close()
}

// Notify は配信状態を queued で保存してからタスクを投入します。
// 投入に失敗した場合は通知失敗としてエラーを返します。
func (m *Manager) Notify(ctx context.Context, n notify.Notification) error {
	if n.RequestID == "" {
		return fmt.Errorf("notification.RequestID is required")
	}

	if err := m.store.Upsert(ctx, &Record{
		RequestID: n.RequestID,
		Status:    StatusQueued,
	}); err != nil {
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskTypeNotify, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1), asynq.TaskID(n.RequestID)); err != nil {
		if markErr := m.store.MarkFailed(ctx, n.RequestID, &ErrorInfo{Code: "ENQUEUE_FAILED", Message: err.Error()}); markErr != nil {
			err = fmt.Errorf("%w (mark failed: %v)", err, markErr)
		}
		return err
	}
	return nil
}
