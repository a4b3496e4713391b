// Package contact はお問い合わせフォームの受付エンドポイントを提供します。
package contact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	maxBodyBytes   = 64 << 10
	successMessage = "Message sent successfully"
	failureMessage = "Failed to send message"
)

// Handler は POST /api/contact のハンドラーを返します。
// 受け取った内容はログに記録するだけで、delay だけ待ってから成功を返します。
func Handler(delay time.Duration, logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}

	return func(c *gin.Context) {
		var fields map[string]any
		body := http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		dec := json.NewDecoder(body)
		err := dec.Decode(&fields)
		if err == nil {
			// 1つ目の値の後ろに余分なデータがあれば不正とみなす
			if _, tokErr := dec.Token(); !errors.Is(tokErr, io.EOF) {
				err = fmt.Errorf("unexpected data after JSON body: %v", tokErr)
			}
		}
		if err != nil || fields == nil {
			logger.Printf("contact form parse error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": failureMessage,
			})
			return
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			logger.Printf("contact form %s=%v", k, fields[k])
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-c.Request.Context().Done():
				// クライアントが切断済み
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": successMessage,
		})
	}
}
