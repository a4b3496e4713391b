package download

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/yourusername/portfolio-site/internal/notify"
)

const (
	genericFailureMessage = "Failed to process request"
	invalidPasswordMsg    = "Invalid password"

	// timestampLayout はミリ秒付きの UTC ISO-8601 形式です。
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// PasswordVerifier は共有パスワードを検証します。
type PasswordVerifier interface {
	Verify(password string) (bool, error)
}

// Options は Service の依存関係です。
type Options struct {
	Verifier PasswordVerifier
	Notifier notify.Notifier
	Logger   *log.Logger
	Now      func() time.Time
	NewID    func() string
}

// Service は申請を検証し、パスワードが一致した場合のみ通知先へ1回転送します。
type Service struct {
	verifier PasswordVerifier
	notifier notify.Notifier
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

// NewService は Service を作成します。
func NewService(opts Options) (*Service, error) {
	if opts.Verifier == nil {
		return nil, errors.New("verifier is nil")
	}
	if opts.Notifier == nil {
		return nil, errors.New("notifier is nil")
	}
	s := &Service{
		verifier: opts.Verifier,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Submit は申請を処理します。失敗時は常に *Error を返します。
func (s *Service) Submit(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	ok, err := s.verifier.Verify(req.Password)
	if err != nil {
		s.logger.Printf("download request: password verification unavailable: %v", err)
		return internalError(CodeMisconfigured, err)
	}
	if !ok {
		s.logger.Printf("download request rejected: invalid password email=%q", req.Email)
		return &Error{Status: http.StatusForbidden, Code: CodeInvalidPassword, Message: invalidPasswordMsg}
	}

	n, err := s.buildNotification(req)
	if err != nil {
		return internalError(CodeNotifyFailed, err)
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Printf("download request id=%s: notification failed: %v", n.RequestID, err)
		return internalError(CodeNotifyFailed, err)
	}

	s.logger.Printf("download request id=%s forwarded", n.RequestID)
	return nil
}

// buildNotification はパスワード以外の項目をコピーし、受付時刻と ID を付与します。
func (s *Service) buildNotification(req Request) (notify.Notification, error) {
	var n notify.Notification
	if err := copier.Copy(&n, &req); err != nil {
		return notify.Notification{}, err
	}
	n.RequestID = s.newID()
	n.Timestamp = s.now().UTC().Format(timestampLayout)
	return n, nil
}
