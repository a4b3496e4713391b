// Package gate は全リクエストの前段で動くエッジゲート（セキュリティヘッダー、
// キャッシュ方針、保護アセットの判定、ボット判定、レート制限）を提供します。
package gate

import (
	"context"
	"log"
	"math"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/portfolio-site/internal/ratelimit"
)

// RateLimitMessage は 429 応答のメッセージです。
const RateLimitMessage = "Too many requests, please try again later."

// Request はゲートが判定に使うリクエストの要約です。
type Request struct {
	Method    string
	Path      string
	Scheme    string
	Host      string
	Referer   string
	UserAgent string
	Cookies   map[string]string
	ClientIP  string
}

// Decision はゲートの判定結果です。
type Decision struct {
	// Headers は常に付与するヘッダーです。
	Headers      http.Header
	CacheControl string
	// Redirect が空でなければそのパスへリダイレクトして処理を打ち切ります。
	Redirect string
	// RateLimited が true なら 429 を返して処理を打ち切ります。
	RateLimited bool
	RetryAfter  time.Duration
	BotExempt   bool
}

// Options はゲートの設定です。
type Options struct {
	ProtectedPath string
	SessionCookie string
	Limiter       ratelimit.Limiter
	Metrics       *Metrics
	Logger        *log.Logger
	Now           func() time.Time
	// TrustedProxies に含まれる接続元からの X-Forwarded-Proto だけを信用します。
	TrustedProxies []*net.IPNet
}

// Gate はリクエストごとの判定を行います。判定自体は状態を持たず、
// レート制限の履歴だけを Limiter と共有します。
type Gate struct {
	protectedPath string
	sessionCookie string
	limiter       ratelimit.Limiter
	metrics       *Metrics
	logger        *log.Logger
	now           func() time.Time
	proxies       []*net.IPNet
}

// New はゲートを作成します。
func New(opts Options) *Gate {
	g := &Gate{
		protectedPath: opts.ProtectedPath,
		sessionCookie: opts.SessionCookie,
		limiter:       opts.Limiter,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           opts.Now,
		proxies:       opts.TrustedProxies,
	}
	if g.protectedPath != "" {
		g.protectedPath = CanonicalPath(g.protectedPath)
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	return g
}

// Decide はリクエストに対する判定を返します。
func (g *Gate) Decide(ctx context.Context, req Request) Decision {
	req.Path = CanonicalPath(req.Path)
	dec := Decision{
		Headers:      SecurityHeaders(),
		CacheControl: CacheControlFor(req.Path),
	}

	if g.protectedPath != "" && req.Path == g.protectedPath && !g.allowProtected(req) {
		g.metrics.observe(OutcomeAssetRedirect)
		dec.Redirect = "/"
		return dec
	}

	if !isRateLimited(req) {
		return dec
	}

	if IsBot(req.UserAgent) {
		g.metrics.observe(OutcomeBotExempt)
		dec.BotExempt = true
		return dec
	}

	if g.limiter == nil {
		return dec
	}

	key := req.ClientIP
	if key == "" {
		key = ratelimit.UnknownKey
	}

	result, err := g.limiter.Allow(ctx, key, g.now())
	if err != nil {
		// バックエンド障害時は通す
		g.logger.Printf("rate limiter failed ip=%s: %v", key, err)
		g.metrics.observe(OutcomeLimiterError)
		return dec
	}
	if !result.Allowed {
		g.logger.Printf("rate limit exceeded ip=%s method=%s path=%s count=%d", key, req.Method, req.Path, result.Count)
		g.metrics.observe(OutcomeRateLimited)
		dec.RateLimited = true
		dec.RetryAfter = result.RetryAfter
		return dec
	}

	g.metrics.observe(OutcomeAllowed)
	return dec
}

// Middleware は Decide の結果をレスポンスに反映する gin ミドルウェアを返します。
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		dec := g.Decide(c.Request.Context(), g.RequestFromGin(c))

		header := c.Writer.Header()
		for k, v := range dec.Headers {
			header[k] = v
		}
		header.Set("Cache-Control", dec.CacheControl)

		if dec.Redirect != "" {
			c.Redirect(http.StatusFound, dec.Redirect)
			c.Abort()
			return
		}

		if dec.RateLimited {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(dec.RetryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": RateLimitMessage,
			})
			return
		}

		c.Next()
	}
}

// RequestFromGin は gin.Context から Request を組み立てます。
// パスは path.Clean で正規化し、"//a" や "/a/./b" などの別表記も同じパスとして判定します。
func (g *Gate) RequestFromGin(c *gin.Context) Request {
	r := c.Request
	cookies := make(map[string]string)
	for _, ck := range r.Cookies() {
		cookies[ck.Name] = ck.Value
	}
	return Request{
		Method:    r.Method,
		Path:      CanonicalPath(r.URL.Path),
		Scheme:    g.requestScheme(r),
		Host:      r.Host,
		Referer:   r.Referer(),
		UserAgent: r.UserAgent(),
		Cookies:   cookies,
		ClientIP:  c.ClientIP(),
	}
}

// isRateLimited は状態を変更するリクエストか API へのリクエストかを判定します。
func isRateLimited(req Request) bool {
	return req.Method == http.MethodPost || req.Path == "/api" || strings.HasPrefix(req.Path, "/api/")
}

// CanonicalPath は URL パスを先頭スラッシュ付きの正規形にします。
func CanonicalPath(p string) string {
	return path.Clean("/" + p)
}

func (g *Gate) requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && g.fromTrustedProxy(r) {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// retryAfterSeconds は Retry-After 用に秒へ切り上げます（最低1秒）。
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
