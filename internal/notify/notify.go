// Package notify はダウンロード申請の通知先（メール・Webhook など）を抽象化します。
package notify

import (
	"context"
	"fmt"
	"strings"
)

// Notification は通知先へ渡す申請内容です。パスワードは含みません。
type Notification struct {
	RequestID      string `json:"requestId"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Reason         string `json:"reason"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Notifier は通知を1回送信します。失敗時はエラーを返し、再送は行いません。
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc は関数を Notifier として扱うためのアダプターです。
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify は Notifier を実装します。
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Subject は通知メールの件名を返します。
func Subject(n Notification) string {
	return "New download request from " + singleLine(n.FullName)
}

// Body は通知のプレーンテキスト本文を返します。
func Body(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request ID: %s\n", n.RequestID)
	fmt.Fprintf(&b, "Name: %s\n", singleLine(n.FullName))
	fmt.Fprintf(&b, "Email: %s\n", singleLine(n.Email))
	fmt.Fprintf(&b, "Reason: %s\n", singleLine(n.Reason))
	if n.AdditionalInfo != "" {
		fmt.Fprintf(&b, "Additional info:\n%s\n", n.AdditionalInfo)
	}
	fmt.Fprintf(&b, "Received at: %s\n", n.Timestamp)
	return b.String()
}

// singleLine はヘッダー注入を防ぐため改行を空白に置き換えます。
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
