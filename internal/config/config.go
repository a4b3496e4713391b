// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port      string // APIサーバーのポート番号
	GinMode   string // Ginの実行モード (debug, release, test)
	StaticDir string // ビルド済みサイトの配信ディレクトリ

	// 信頼するリバースプロキシ（カンマ区切り、空なら X-Forwarded-For を信用しない）
	TrustedProxies string

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionCookieName string // 保護アセットの判定に使うセッションクッキー名
	SessionSecret     string // セッション署名用の秘密鍵

	// 保護アセット設定
	ProtectedAssetPath string // 保護対象のURLパス
	ProtectedAssetFile string // 保護対象ファイルのディスク上のパス

	// レート制限設定
	RateLimitWindow        time.Duration // スライディングウィンドウの長さ
	RateLimitMax           int           // ウィンドウ内の最大リクエスト数
	RateLimitMaxTracked    int           // メモリ上で追跡するIPの上限
	RateLimitSweepInterval time.Duration // アイドルなIPを掃除する間隔
	RateLimitBackend       string        // memory または redis

	// ダウンロード申請設定
	DownloadPassword     string // 共有パスワード（平文）
	DownloadPasswordHash string // 共有パスワード（bcrypt、設定時はこちらを優先）

	// 通知設定
	NotifyDriver       string        // log, webhook, smtp
	NotifyWebhookURL   string        // webhook 送信先
	NotifyEmailTo      string        // 通知メールの宛先
	NotifyEmailFrom    string        // 通知メールの送信元
	NotifyTimeout      time.Duration // 1回の通知のタイムアウト
	NotifyMaxPerMinute int           // 外部送信の上限（0で無制限）
	NotifyQueue        bool          // Asynq 経由で非同期に通知するか
	NotifyRecordTTL    time.Duration // 配信状態レコードの保持期間

	// SMTP設定
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// Redis設定（レート制限・キュー共通）
	RedisURL string

	// お問い合わせ設定
	ContactDelay time.Duration // 応答前の待ち時間

	// 計測
	MetricsEnabled bool // /metrics を公開するか
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:      getEnv("PORT", "8080"),
		GinMode:   getEnv("GIN_MODE", "debug"),
		StaticDir: getEnv("STATIC_DIR", "./public"),

		TrustedProxies: getEnv("TRUSTED_PROXIES", ""),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// セッション設定
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session"),
		SessionSecret:     getEnv("SESSION_SECRET", ""),

		// 保護アセット設定
		ProtectedAssetPath: getEnv("PROTECTED_ASSET_PATH", "/assets/resume.pdf"),
		ProtectedAssetFile: getEnv("PROTECTED_ASSET_FILE", ""),

		// レート制限設定
		RateLimitWindow:        getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RateLimitMax:           getEnvAsInt("RATE_LIMIT_MAX", 20),
		RateLimitMaxTracked:    getEnvAsInt("RATE_LIMIT_MAX_TRACKED", 10000),
		RateLimitSweepInterval: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		RateLimitBackend:       strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),

		// ダウンロード申請設定
		DownloadPassword:     getEnv("DOWNLOAD_PASSWORD", ""),
		DownloadPasswordHash: getEnv("DOWNLOAD_PASSWORD_HASH", ""),

		// 通知設定
		NotifyDriver:       strings.ToLower(getEnv("NOTIFY_DRIVER", "log")),
		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyEmailTo:      getEnv("NOTIFY_EMAIL_TO", ""),
		NotifyEmailFrom:    getEnv("NOTIFY_EMAIL_FROM", ""),
		NotifyTimeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		NotifyMaxPerMinute: getEnvAsInt("NOTIFY_MAX_PER_MINUTE", 30),
		NotifyQueue:        getEnvAsBool("NOTIFY_QUEUE", false),
		NotifyRecordTTL:    getEnvAsDuration("NOTIFY_RECORD_TTL", 24*time.Hour),

		// SMTP設定
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		// Redis設定
		RedisURL: getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		// お問い合わせ設定
		ContactDelay: getEnvAsDuration("CONTACT_DELAY", time.Second),

		// 計測
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be > 0")
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME is required")
	}
	if !strings.HasPrefix(c.ProtectedAssetPath, "/") {
		return fmt.Errorf("PROTECTED_ASSET_PATH must start with /")
	}

	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported RATE_LIMIT_BACKEND: %s", c.RateLimitBackend)
	}

	switch c.NotifyDriver {
	case "log":
	case "webhook":
		if c.NotifyWebhookURL == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL is required when NOTIFY_DRIVER=webhook")
		}
	case "smtp":
		if c.SMTPHost == "" || c.NotifyEmailTo == "" || c.NotifyEmailFrom == "" {
			return fmt.Errorf("SMTP_HOST, NOTIFY_EMAIL_TO and NOTIFY_EMAIL_FROM are required when NOTIFY_DRIVER=smtp")
		}
	default:
		return fmt.Errorf("unsupported NOTIFY_DRIVER: %s", c.NotifyDriver)
	}

	if c.UsesRedis() && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when redis features are enabled")
	}

	// ローカル開発では秘密情報は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.DownloadPassword == "" && c.DownloadPasswordHash == "" {
			return fmt.Errorf("DOWNLOAD_PASSWORD or DOWNLOAD_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	return nil
}

// UsesRedis は Redis 接続が必要な構成かどうかを返します。
func (c *Config) UsesRedis() bool {
	return c.RateLimitBackend == "redis" || c.NotifyQueue
}

// AllowedOrigins は CORS_ALLOWED_ORIGINS を配列に変換します。
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyList は TRUSTED_PROXIES を配列に変換します。
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 60s, 5m）。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
