// Package auth はダウンロード申請の共有パスワード検証と、訪問者セッションの発行を提供します。
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionKeyFirstVisit = "first_visit"
	sessionKeyVisitor    = "visitor_id"

	sessionMaxAge = 30 * 24 * time.Hour
)

// ErrSecretNotConfigured は共有パスワードが未設定のときに返ります。
var ErrSecretNotConfigured = errors.New("download secret is not configured")

// Secret はダウンロード申請の共有パスワードです。
// bcrypt ハッシュが設定されている場合はそちらを優先します。
type Secret struct {
	plain string
	hash  []byte
}

// NewSecret は平文またはハッシュから Secret を作成します。
func NewSecret(plain, hash string) *Secret {
	s := &Secret{plain: plain}
	if hash != "" {
		s.hash = []byte(hash)
	}
	return s
}

// Verify は password が共有パスワードと一致するかを返します。
func (s *Secret) Verify(password string) (bool, error) {
	if s == nil || (s.plain == "" && len(s.hash) == 0) {
		return false, ErrSecretNotConfigured
	}
	if len(s.hash) > 0 {
		err := bcrypt.CompareHashAndPassword(s.hash, []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return subtle.ConstantTimeCompare([]byte(s.plain), []byte(password)) == 1, nil
}

// SessionOptions は訪問者セッションの設定です。
type SessionOptions struct {
	CookieName string
	Secret     string
	Secure     bool
}

// Sessions はクッキーストアを使った gin-contrib/sessions ミドルウェアを返します。
// Secret が空の場合は起動ごとのランダム鍵を使います（再起動でセッションは無効になります）。
func Sessions(opts SessionOptions) (gin.HandlerFunc, error) {
	key := opts.Secret
	if key == "" {
		generated, err := generateToken()
		if err != nil {
			return nil, err
		}
		key = generated
	}

	store := cookie.NewStore([]byte(key))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(opts.CookieName, store), nil
}

// EnsureVisitorSession はページ表示（GET/HEAD かつ API・拡張子付きアセット以外）で
// セッションがなければ発行するミドルウェアです。保護アセットの判定はこのクッキーの有無を見ます。
func EnsureVisitorSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isPageRequest(c.Request) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		if _, ok := session.Get(sessionKeyVisitor).(string); !ok {
			visitor, err := generateToken()
			if err == nil {
				session.Set(sessionKeyVisitor, visitor)
				session.Set(sessionKeyFirstVisit, time.Now().Unix())
				_ = session.Save()
			}
		}
		c.Next()
	}
}

func isPageRequest(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	p := r.URL.Path
	if p == "/api" || strings.HasPrefix(p, "/api/") {
		return false
	}
	last := p[strings.LastIndex(p, "/")+1:]
	return !strings.Contains(last, ".") || strings.HasSuffix(last, ".html")
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
