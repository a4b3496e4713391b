package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yourusername/portfolio-site/internal/ratelimit"
)

const (
	testProtectedPath = "/assets/resume.pdf"
	testCookie        = "session"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("backend down")
}

func newTestRouter(g *Gate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(g.Middleware())
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) }
	router.POST("/api/contact", ok)
	router.GET("/api/ping", ok)
	router.GET("/", ok)
	router.GET(testProtectedPath, func(c *gin.Context) { c.String(http.StatusOK, "pdf") })
	router.GET("/_next/static/app.js", ok)
	return router
}

func newTestGate(limiter ratelimit.Limiter, clock *fixedClock) (*Gate, *Metrics) {
	metrics := NewMetrics()
	return New(Options{
		ProtectedPath: testProtectedPath,
		SessionCookie: testCookie,
		Limiter:       limiter,
		Metrics:       metrics,
		Now:           clock.Now,
	}), metrics
}

func post(router *gin.Engine, ip, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/contact", nil)
	req.RemoteAddr = ip + ":5555"
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGateRateLimitScenario(t *testing.T) {
	clock := &fixedClock{now: time.UnixMilli(1_700_000_000_000)}
	g, metrics := newTestGate(ratelimit.NewMemoryLimiter(time.Minute, 20), clock)
	router := newTestRouter(g)
	start := clock.now

	for i := 0; i < 19; i++ {
		clock.now = start.Add(time.Duration(i) * 500 * time.Millisecond)
		if rec := post(router, "1.2.3.4", "Mozilla/5.0"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d", i+1, rec.Code)
		}
	}

	clock.now = start.Add(15 * time.Second)
	if rec := post(router, "1.2.3.4", "Mozilla/5.0"); rec.Code != http.StatusOK {
		t.Fatalf("20th request: unexpected status %d", rec.Code)
	}

	clock.now = start.Add(20 * time.Second)
	rec := post(router, "1.2.3.4", "Mozilla/5.0")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("21st request: expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["success"] != false || payload["message"] != RateLimitMessage {
		t.Fatalf("unexpected body: %v", payload)
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("security headers must be present on 429 responses")
	}

	// 他のIPは影響を受けない
	if rec := post(router, "5.6.7.8", "Mozilla/5.0"); rec.Code != http.StatusOK {
		t.Fatalf("other ip: unexpected status %d", rec.Code)
	}

	if got := testutil.ToFloat64(metrics.decisions.WithLabelValues(OutcomeRateLimited)); got != 1 {
		t.Fatalf("expected 1 rate_limited observation, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.decisions.WithLabelValues(OutcomeAllowed)); got != 21 {
		t.Fatalf("expected 21 allowed observations, got %v", got)
	}
}

func TestGateBotsAreNeverLimited(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	g, _ := newTestGate(ratelimit.NewMemoryLimiter(time.Minute, 2), clock)
	router := newTestRouter(g)

	for i := 0; i < 50; i++ {
		if rec := post(router, "1.2.3.4", "Mozilla/5.0 (compatible; Googlebot/2.1)"); rec.Code != http.StatusOK {
			t.Fatalf("bot request %d: unexpected status %d", i+1, rec.Code)
		}
	}
}

func TestGateGetPagesAreNotLimited(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	g, _ := newTestGate(ratelimit.NewMemoryLimiter(time.Minute, 1), clock)
	router := newTestRouter(g)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("page request %d: unexpected status %d", i+1, rec.Code)
		}
	}

	// GET でも /api 配下は対象
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/api/ping", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("api GET %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestGateLimiterErrorFailsOpen(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	g, metrics := newTestGate(failingLimiter{}, clock)
	router := newTestRouter(g)

	if rec := post(router, "1.2.3.4", ""); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := testutil.ToFloat64(metrics.decisions.WithLabelValues(OutcomeLimiterError)); got != 1 {
		t.Fatalf("expected limiter_error observation, got %v", got)
	}
}

func TestGateProtectedAssetWithoutRefererRedirects(t *testing.T) {
	g, _ := newTestGate(nil, &fixedClock{now: time.Now()})
	router := newTestRouter(g)

	req := httptest.NewRequest(http.MethodGet, "http://example.com"+testProtectedPath, nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
	if rec.Body.String() == "pdf" {
		t.Fatal("asset must not be served")
	}
}

func TestGateProtectedAssetWithoutCookieRedirects(t *testing.T) {
	g, _ := newTestGate(nil, &fixedClock{now: time.Now()})
	router := newTestRouter(g)

	req := httptest.NewRequest(http.MethodGet, "http://example.com"+testProtectedPath, nil)
	req.Header.Set("Referer", "http://example.com/about")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestGateProtectedAssetCrossOriginRefererRedirects(t *testing.T) {
	g, _ := newTestGate(nil, &fixedClock{now: time.Now()})
	router := newTestRouter(g)

	req := httptest.NewRequest(http.MethodGet, "http://example.com"+testProtectedPath, nil)
	req.Header.Set("Referer", "http://evil.example.net/page")
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
}

func TestGateProtectedAssetServedWithRefererAndCookie(t *testing.T) {
	g, _ := newTestGate(nil, &fixedClock{now: time.Now()})
	router := newTestRouter(g)

	req := httptest.NewRequest(http.MethodGet, "http://example.com"+testProtectedPath, nil)
	req.Header.Set("Referer", "http://example.com/")
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "pdf" {
		t.Fatalf("expected asset to be served, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGateForwardedProtoFromTrustedProxy(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"192.0.2.0/24"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies returned error: %v", err)
	}
	g := New(Options{
		ProtectedPath:  testProtectedPath,
		SessionCookie:  testCookie,
		TrustedProxies: proxies,
	})
	router := newTestRouter(g)

	req := httptest.NewRequest(http.MethodGet, "http://example.com"+testProtectedPath, nil)
	req.RemoteAddr = "192.0.2.10:443"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("Referer", "https://example.com/")
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGateForwardedProtoFromUntrustedPeerIsIgnored(t *testing.T) {
	g, _ := newTestGate(nil, &fixedClock{now: time.Now()})
	router := newTestRouter(g)

	// http で届いたリクエストに https を名乗らせても referer のオリジンとは一致しない
	req := httptest.NewRequest(http.MethodGet, "http://example.com"+testProtectedPath, nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("Referer", "https://example.com/")
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
}

func TestGateProtectedAssetAlternateSpellingsRedirect(t *testing.T) {
	g, _ := newTestGate(nil, &fixedClock{now: time.Now()})
	router := newTestRouter(g)

	for _, p := range []string{"/assets//resume.pdf", "//assets/resume.pdf", "/assets/./resume.pdf", "/assets/x/../resume.pdf"} {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
		req.URL.Path = p
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
			t.Fatalf("%s: expected redirect to /, got %d %q", p, rec.Code, rec.Header().Get("Location"))
		}
	}
}

func TestParseTrustedProxies(t *testing.T) {
	nets, err := ParseTrustedProxies([]string{"10.0.0.1", " 172.16.0.0/12 ", "::1", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nets) != 3 {
		t.Fatalf("expected 3 networks, got %d", len(nets))
	}
	if _, err := ParseTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for invalid entry")
	}
}

func TestGateHeadersAndCachePolicy(t *testing.T) {
	g, _ := newTestGate(nil, &fixedClock{now: time.Now()})
	router := newTestRouter(g)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/_next/static/app.js", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Cache-Control"); got != CacheImmutable {
		t.Fatalf("unexpected Cache-Control: %q", got)
	}
	for key := range SecurityHeaders() {
		if rec.Header().Get(key) == "" {
			t.Fatalf("missing security header %s", key)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Cache-Control"); got != CacheDefault {
		t.Fatalf("unexpected Cache-Control for page: %q", got)
	}
}

func TestDecideUnknownIPSharesBucket(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	g, _ := newTestGate(ratelimit.NewMemoryLimiter(time.Minute, 1), clock)
	ctx := context.Background()

	first := g.Decide(ctx, Request{Method: http.MethodPost, Path: "/api/contact"})
	if first.RateLimited {
		t.Fatal("first request should pass")
	}
	second := g.Decide(ctx, Request{Method: http.MethodPost, Path: "/api/contact", ClientIP: ratelimit.UnknownKey})
	if !second.RateLimited {
		t.Fatal("missing ip and explicit unknown should share one quota")
	}
}
