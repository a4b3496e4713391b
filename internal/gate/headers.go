package gate

import (
	"net/http"
	"strings"
)

// cspDirectives はサイトが読み込むスクリプト・スタイル・画像・フォント・接続先・フレームの許可リストです。
var cspDirectives = []string{
	"default-src 'self'",
	"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://www.googletagmanager.com https://www.google-analytics.com",
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com",
	"img-src 'self' data: blob: https:",
	"font-src 'self' data: https://fonts.gstatic.com",
	"connect-src 'self' https://www.google-analytics.com https://region1.google-analytics.com",
	"frame-src 'self' https://www.youtube.com https://player.vimeo.com",
	"object-src 'none'",
	"base-uri 'self'",
	"form-action 'self'",
	"frame-ancestors 'self'",
}

// ContentSecurityPolicy は Content-Security-Policy ヘッダーの値を返します。
func ContentSecurityPolicy() string {
	return strings.Join(cspDirectives, "; ")
}

// SecurityHeaders は全レスポンスに付与するヘッダーを返します。
func SecurityHeaders() http.Header {
	h := make(http.Header, 9)
	h.Set("X-DNS-Prefetch-Control", "on")
	h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("X-Frame-Options", "SAMEORIGIN")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "origin-when-cross-origin")
	h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), interest-cohort=()")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Content-Security-Policy", ContentSecurityPolicy())
	return h
}
