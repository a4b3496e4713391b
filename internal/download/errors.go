package download

import (
	"fmt"
	"net/http"
)

// エラーコード
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeInvalidPassword = "INVALID_PASSWORD"
	CodeParseError      = "PARSE_ERROR"
	CodeNotifyFailed    = "NOTIFY_FAILED"
	CodeMisconfigured   = "SERVER_MISCONFIGURATION"
)

// Error はクライアントに返すステータスとメッセージを持つエラーです。
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(message string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeInvalidInput, Message: message, Err: err}
}

func internalError(code string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: code, Message: genericFailureMessage, Err: err}
}
