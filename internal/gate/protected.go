package gate

import (
	"net/url"
	"strings"
)

// sameOrigin は referer のオリジンがリクエスト自身のオリジンと一致するかを返します。
// 解析できない referer は不一致として扱います。
func sameOrigin(referer, scheme, host string) bool {
	if referer == "" || host == "" {
		return false
	}
	ref, err := url.Parse(referer)
	if err != nil || ref.Scheme == "" || ref.Host == "" {
		return false
	}
	return strings.EqualFold(ref.Scheme, scheme) && strings.EqualFold(ref.Host, host)
}

// allowProtected は保護アセットへのアクセス条件（同一オリジンの referer とセッションクッキー）を判定します。
func (g *Gate) allowProtected(req Request) bool {
	if !sameOrigin(req.Referer, req.Scheme, req.Host) {
		return false
	}
	_, ok := req.Cookies[g.sessionCookie]
	return ok
}
