// Package app はアプリケーションの起動と依存関係のワイヤリングを担当する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/keisuke/melodeck/internal/cache"
	"github.com/keisuke/melodeck/internal/config"
	"github.com/keisuke/melodeck/internal/download"
	"github.com/keisuke/melodeck/internal/handler"
	"github.com/keisuke/melodeck/internal/library"
	"github.com/keisuke/melodeck/internal/logger"
	"github.com/keisuke/melodeck/internal/metrics"
	"github.com/keisuke/melodeck/internal/middleware"
	"github.com/keisuke/melodeck/internal/notify"
	"github.com/keisuke/melodeck/internal/security"
	"github.com/keisuke/melodeck/internal/upstream"
	"github.com/keisuke/melodeck/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 仮レベルでログを初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("upstream", cfg.UpstreamBaseURL),
	)

	return runServe(cfg)
}

// runServe はゲートウェイサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとポーラーを止めてから
// グレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. キャッシュとバックエンドクライアントの初期化
	store := cache.New()
	client := upstream.NewClient(
		cfg.UpstreamBaseURL, cfg.UserID, cfg.UpstreamToken,
		cfg.FetchTimeout, slog.Default(),
	)

	// 3. セキュリティサービスの初期化
	sanitizer := security.NewDisplaySanitizer()
	guard := security.NewArtifactGuard()

	// 4. サービス層の初期化
	libService := library.NewService(
		store, client, sanitizer, collector, slog.Default(), cfg.PageLimit,
	)

	notifier := notify.NewMemory(cfg.NotificationBuffer, collector)

	downloader := download.NewDownloader(
		guard, cfg.DownloadDir, cfg.DownloadTimeout, cfg.DownloadMaxSize, slog.Default(),
	)

	// 5. ポーラーの初期化
	// ポーラーのライフタイムはサーバーのライフタイムに紐づける
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()

	poller := poll.NewPoller(libService, notifier, collector, slog.Default(), cfg.PollTickBudget)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configはreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rateLimit(cfg.RateLimitGeneral)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.MutationRate = rateLimit(cfg.RateLimitMutation)
	rateLimiterCfg.MutationBurst = cfg.RateLimitMutation

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		Library:       libService,
		Poller:        poller,
		CacheCleaner:  libService,
		Notifications: notifier,
		Downloader:    downloader,

		PollerContext: pollerCtx,
		PollIntervals: cfg.PollIntervals,

		MetricsHandler: metrics.Handler(registry),
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("gateway server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down gateway server...")

	// 新しいフェッチが積まれないよう、先にポーラーを止める
	poller.StopAll()
	pollerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("gateway server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// rateLimit はreq/min単位の設定値をrate.Limit（req/sec）に変換する。
func rateLimit(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}
