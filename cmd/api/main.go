// Package main はポートフォリオサイトのサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/portfolio-site/internal/assets"
	"github.com/yourusername/portfolio-site/internal/auth"
	"github.com/yourusername/portfolio-site/internal/config"
	"github.com/yourusername/portfolio-site/internal/contact"
	"github.com/yourusername/portfolio-site/internal/download"
	"github.com/yourusername/portfolio-site/internal/gate"
	"github.com/yourusername/portfolio-site/internal/notify"
	"github.com/yourusername/portfolio-site/internal/ratelimit"
)

const (
	serviceName    = "portfolio-site-api"
	serviceVersion = "0.1.0"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb, err = newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
	}

	limiter, err := setupLimiter(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("Failed to set up rate limiter: %v", err)
	}

	notifier, manager, err := setupNotifier(cfg, rdb)
	if err != nil {
		log.Fatalf("Failed to set up notifier: %v", err)
	}
	if manager != nil {
		manager.StartWorkers()
	}

	router, err := newRouter(cfg, routerDeps{
		Limiter:  limiter,
		Notifier: notifier,
		Asset:    loadProtectedAsset(cfg),
		Metrics:  gate.NewMetrics(),
	})
	if err != nil {
		log.Fatalf("Failed to set up router: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if manager != nil {
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Printf("job manager shutdown error: %v", err)
		}
	}
}

// routerDeps は newRouter に渡す外部依存です。
type routerDeps struct {
	Limiter  ratelimit.Limiter
	Notifier notify.Notifier
	Asset    *assets.Asset
	Metrics  *gate.Metrics
	Logger   *log.Logger
}

// newRouter はミドルウェアとルーティングを組み立てます。
func newRouter(cfg *config.Config, deps routerDeps) (*gin.Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	if err := router.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		return nil, err
	}

	proxies, err := gate.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		return nil, err
	}

	// ゲートは他のすべての処理より先に動かす
	edge := gate.New(gate.Options{
		ProtectedPath:  cfg.ProtectedAssetPath,
		SessionCookie:  cfg.SessionCookieName,
		Limiter:        deps.Limiter,
		Metrics:        deps.Metrics,
		Logger:         logger,
		TrustedProxies: proxies,
	})
	router.Use(edge.Middleware())

	sessionMiddleware, err := auth.Sessions(auth.SessionOptions{
		CookieName: cfg.SessionCookieName,
		Secret:     cfg.SessionSecret,
		Secure:     cfg.GinMode == gin.ReleaseMode,
	})
	if err != nil {
		return nil, err
	}
	router.Use(sessionMiddleware, auth.EnsureVisitorSession())

	// CORSミドルウェアの設定（許可オリジンが空なら同一オリジンのみ）
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		router.Use(cors.New(corsConfig))
	}

	downloadService, err := download.NewService(download.Options{
		Verifier: auth.NewSecret(cfg.DownloadPassword, cfg.DownloadPasswordHash),
		Notifier: deps.Notifier,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	router.GET("/health", handleHealth)
	if cfg.MetricsEnabled && deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api")
	{
		api.POST("/download-request", download.Handler(downloadService))
		api.POST("/contact", contact.Handler(cfg.ContactDelay, logger))
	}

	assetHandler := assets.Handler(deps.Asset, logger)
	router.GET(cfg.ProtectedAssetPath, assetHandler)
	router.HEAD(cfg.ProtectedAssetPath, assetHandler)

	router.NoRoute(staticHandler(cfg.StaticDir, cfg.ProtectedAssetPath))

	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// staticHandler はビルド済みサイトを dir から配信します。
// ディレクトリへのアクセスは index.html、見つからない場合は 404.html（なければ JSON）を返します。
// 保護パスは別表記で届いても静的配信しません。
func staticHandler(dir, protectedPath string) gin.HandlerFunc {
	protectedPath = gate.CanonicalPath(protectedPath)
	return func(c *gin.Context) {
		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		if !isRead || gate.CanonicalPath(c.Request.URL.Path) == protectedPath {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
			return
		}

		if dir != "" {
			if file, ok := resolveStatic(dir, c.Request.URL.Path); ok {
				c.File(file)
				return
			}
			if page, err := os.ReadFile(filepath.Join(dir, "404.html")); err == nil {
				c.Data(http.StatusNotFound, "text/html; charset=utf-8", page)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
	}
}

// resolveStatic はURLパスを dir 配下のファイルへ解決します。dir の外へは出ません。
func resolveStatic(dir, urlPath string) (string, bool) {
	candidate := filepath.Join(dir, filepath.FromSlash(gate.CanonicalPath(urlPath)))

	candidates := []string{candidate}
	if filepath.Ext(candidate) == "" {
		candidates = append(candidates, candidate+".html", filepath.Join(candidate, "index.html"))
	}
	for _, file := range candidates {
		if isFile(file) {
			return file, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadProtectedAsset は保護ファイルを検証して読み込みます。失敗時は nil（配信時 404）です。
func loadProtectedAsset(cfg *config.Config) *assets.Asset {
	if cfg.ProtectedAssetFile == "" {
		log.Printf("PROTECTED_ASSET_FILE is not set; %s will return 404", cfg.ProtectedAssetPath)
		return nil
	}
	asset, err := assets.Load(cfg.ProtectedAssetFile)
	if err != nil {
		log.Printf("protected asset unavailable: %v", err)
		return nil
	}
	log.Printf("protected asset loaded path=%s pages=%d size=%d", asset.Path, asset.Pages, asset.Size)
	return asset
}
