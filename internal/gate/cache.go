package gate

import (
	"path"
	"strings"
)

const (
	// CacheImmutable は拡張子付きの静的アセット向け（1年）。
	CacheImmutable = "public, max-age=31536000, immutable"
	// CacheDefault はその他のレスポンス向け（ブラウザ1時間、CDN 1日）。
	CacheDefault = "public, max-age=3600, s-maxage=86400"
)

var staticExtensions = map[string]struct{}{
	// 画像
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".avif": {}, ".svg": {}, ".ico": {},
	// フォント
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	// スクリプト・スタイル
	".js": {}, ".mjs": {}, ".css": {},
}

// CacheControlFor はパスの拡張子から Cache-Control の値を決めます。
func CacheControlFor(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if _, ok := staticExtensions[ext]; ok {
		return CacheImmutable
	}
	return CacheDefault
}
