package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPNotifier は通知をメールで送信します。
type SMTPNotifier struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string

	// send はテストで差し替えます。nil の場合は smtp.SendMail を使います。
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Notify は Notifier を実装します。smtp.SendMail はコンテキストを受け取らないため、
// ctx が先に終わった場合は送信の完了を待たずにエラーを返します。
func (s *SMTPNotifier) Notify(ctx context.Context, n Notification) error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}

	msg := s.message(n, time.Now())
	done := make(chan error, 1)
	go func() {
		done <- send(addr, auth, s.From, []string{s.To}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTPNotifier) message(n Notification, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", singleLine(s.From))
	fmt.Fprintf(&b, "To: %s\r\n", singleLine(s.To))
	if n.Email != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", singleLine(n.Email))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(n))
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(Body(n), "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
