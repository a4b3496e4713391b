// Package download はゲート付きダウンロード申請（POST /api/download-request）の
// 検証と通知先への転送を提供します。
package download

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Request は申請フォームの入力です。
type Request struct {
	FullName       string `json:"fullName" binding:"required,min=2"`
	Email          string `json:"email" binding:"required,email"`
	Reason         string `json:"reason" binding:"required"`
	Password       string `json:"password" binding:"required"`
	AdditionalInfo string `json:"additionalInfo"`
}

// normalize は前後の空白を取り除きます。パスワードはそのまま比較するため触りません。
func (r *Request) normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Reason = strings.TrimSpace(r.Reason)
	r.AdditionalInfo = strings.TrimSpace(r.AdditionalInfo)
}

// fieldMessages は最初に失敗したフィールドごとのメッセージです。
var fieldMessages = map[string]string{
	"FullName": "Full name must be at least 2 characters",
	"Email":    "Please provide a valid email address",
	"Reason":   "Please provide a reason for your request",
	"Password": "Password is required",
}

// Validate は入力を検証し、失敗時は 400 の *Error を返します。
func (r *Request) Validate() error {
	r.normalize()

	err := binding.Validator.ValidateStruct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := fieldMessages[verrs[0].StructField()]; ok {
			return validationError(msg, err)
		}
	}
	return validationError("Invalid request", err)
}
