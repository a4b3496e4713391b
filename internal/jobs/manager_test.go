package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/yourusername/portfolio-site/internal/notify"
)

type fakeStore struct {
	records  map[string]*Record
	attempts map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*Record{}, attempts: map[string]int{}}
}

func (s *fakeStore) Upsert(_ context.Context, record *Record) error {
	copied := *record
	s.records[record.RequestID] = &copied
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*Record, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *fakeStore) MarkAttempt(_ context.Context, id string) error {
	s.attempts[id]++
	return nil
}

func (s *fakeStore) MarkSent(_ context.Context, id string) error {
	s.records[id].Status = StatusSent
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, info *ErrorInfo) error {
	s.records[id].Status = StatusFailed
	s.records[id].Error = info
	return nil
}

type fakeClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "task"}, nil
}

func (c *fakeClient) Close() error { return nil }

func testNotification() notify.Notification {
	return notify.Notification{
		RequestID: "req-1",
		FullName:  "Ada Lovelace",
		Email:     "ada@example.com",
		Reason:    "Hiring",
		Timestamp: "2026-10-19T01:00:00.000Z",
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestManagerNotifyEnqueuesTask(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	manager := newManager(client, store, notify.NotifierFunc(func(context.Context, notify.Notification) error { return nil }), quietLogger())

	if err := manager.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	if len(client.tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(client.tasks))
	}
	if client.tasks[0].Type() != taskTypeNotify {
		t.Fatalf("unexpected task type: %s", client.tasks[0].Type())
	}
	var payload notify.Notification
	if err := json.Unmarshal(client.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if payload != testNotification() {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if rec := store.records["req-1"]; rec == nil || rec.Status != StatusQueued {
		t.Fatalf("expected queued record, got %+v", rec)
	}
}

func TestManagerNotifyEnqueueFailure(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{err: errors.New("redis unavailable")}
	manager := newManager(client, store, notify.NotifierFunc(func(context.Context, notify.Notification) error { return nil }), quietLogger())

	if err := manager.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	rec := store.records["req-1"]
	if rec.Status != StatusFailed || rec.Error == nil || rec.Error.Code != "ENQUEUE_FAILED" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestManagerNotifyRequiresRequestID(t *testing.T) {
	manager := newManager(&fakeClient{}, newFakeStore(), notify.NotifierFunc(func(context.Context, notify.Notification) error { return nil }), quietLogger())
	if err := manager.Notify(context.Background(), notify.Notification{}); err == nil {
		t.Fatal("expected error for empty request id")
	}
}

func TestHandleNotifyTaskDelivers(t *testing.T) {
	store := newFakeStore()
	var delivered []notify.Notification
	delivery := notify.NotifierFunc(func(_ context.Context, n notify.Notification) error {
		delivered = append(delivered, n)
		return nil
	})
	manager := newManager(&fakeClient{}, store, delivery, quietLogger())
	_ = store.Upsert(context.Background(), &Record{RequestID: "req-1", Status: StatusQueued})

	body, _ := json.Marshal(testNotification())
	if err := manager.handleNotifyTask(context.Background(), asynq.NewTask(taskTypeNotify, body)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != testNotification() {
		t.Fatalf("unexpected deliveries: %+v", delivered)
	}
	if store.records["req-1"].Status != StatusSent {
		t.Fatalf("expected sent, got %s", store.records["req-1"].Status)
	}
	if store.attempts["req-1"] != 1 {
		t.Fatalf("expected one attempt, got %d", store.attempts["req-1"])
	}
}

func TestHandleNotifyTaskFailure(t *testing.T) {
	store := newFakeStore()
	delivery := notify.NotifierFunc(func(context.Context, notify.Notification) error {
		return errors.New("smtp down")
	})
	manager := newManager(&fakeClient{}, store, delivery, quietLogger())
	_ = store.Upsert(context.Background(), &Record{RequestID: "req-1", Status: StatusQueued})

	body, _ := json.Marshal(testNotification())
	if err := manager.handleNotifyTask(context.Background(), asynq.NewTask(taskTypeNotify, body)); err == nil {
		t.Fatal("expected delivery error to be returned for retry")
	}
	rec := store.records["req-1"]
	if rec.Status != StatusFailed || rec.Error == nil || rec.Error.Code != "DELIVERY_FAILED" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestHandleNotifyTaskInvalidPayloadSkipsRetry(t *testing.T) {
	manager := newManager(&fakeClient{}, newFakeStore(), notify.NotifierFunc(func(context.Context, notify.Notification) error { return nil }), quietLogger())

	err := manager.handleNotifyTask(context.Background(), asynq.NewTask(taskTypeNotify, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestHandleNotifyTaskSkipsDeliveredRecord(t *testing.T) {
	store := newFakeStore()
	calls := 0
	delivery := notify.NotifierFunc(func(context.Context, notify.Notification) error {
		calls++
		return nil
	})
	manager := newManager(&fakeClient{}, store, delivery, quietLogger())
	_ = store.Upsert(context.Background(), &Record{RequestID: "req-1", Status: StatusSent})

	body, _ := json.Marshal(testNotification())
	if err := manager.handleNotifyTask(context.Background(), asynq.NewTask(taskTypeNotify, body)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("already delivered notification was sent again (%d calls)", calls)
	}
	if store.attempts["req-1"] != 0 {
		t.Fatalf("expected no attempt to be recorded, got %d", store.attempts["req-1"])
	}
}
