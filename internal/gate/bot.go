package gate

import "regexp"

// botPattern はクローラー・ヘッドレスブラウザ・HTTPクライアント・計測ツールの User-Agent に一致します。
var botPattern = regexp.MustCompile(`(?i)(bot|crawler|spider|crawling|slurp|headless|phantomjs|puppeteer|playwright|selenium|` +
	`curl|wget|python-requests|python-urllib|aiohttp|axios|node-fetch|undici|go-http-client|okhttp|java/|libwww|httpclient|` +
	`googlebot|bingbot|yandex|baiduspider|duckduckbot|applebot|facebookexternalhit|twitterbot|linkedinbot|` +
	`lighthouse|pagespeed|gtmetrix|pingdom|webpagetest)`)

// IsBot は User-Agent が既知のボットやツールのものかを判定します。
func IsBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	return botPattern.MatchString(userAgent)
}
