package download

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	maxBodyBytes   = 16 * 1024
	successMessage = "Download request submitted successfully"
)

// Handler は POST /api/download-request のハンドラーを返します。
func Handler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := decodeRequest(c)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if err := svc.Submit(c.Request.Context(), req); err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": successMessage,
		})
	}
}

// decodeRequest は JSON ボディを読み込みます。JSON として解釈できない場合（末尾の余分な
// データを含む）は 500、型の不一致やサイズ超過は 400 として扱います。
func decodeRequest(c *gin.Context) (Request, error) {
	var req Request
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	err := dec.Decode(&req)
	if err == nil {
		err = expectEOF(dec)
	}
	if err == nil {
		return req, nil
	}

	var (
		typeErr *json.UnmarshalTypeError
		sizeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &typeErr):
		return req, validationError("Invalid value for "+typeErr.Field, err)
	case errors.As(err, &sizeErr):
		return req, validationError("Request body too large", err)
	default:
		return req, internalError(CodeParseError, err)
	}
}

var errTrailingData = errors.New("unexpected data after JSON body")

// expectEOF は1つ目の JSON 値の後に何も残っていないことを確認します。
func expectEOF(dec *json.Decoder) error {
	_, err := dec.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errTrailingData
	}
}

func respondWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := genericFailureMessage

	var apiErr *Error
	if errors.As(err, &apiErr) {
		status = apiErr.Status
		message = apiErr.Message
	}

	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
