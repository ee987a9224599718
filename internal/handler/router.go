package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keisuke/melodeck/internal/middleware"
	"github.com/keisuke/melodeck/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	Library       LibraryService
	Poller        PollerControl
	CacheCleaner  CacheCleaner
	Notifications NotificationStore
	Downloader    ArtifactDownloader

	// ポーラー起動用のサーバーライフタイムコンテキストと種別ごとの間隔
	PollerContext context.Context
	PollIntervals map[model.ResourceKind]time.Duration

	// /metrics エンドポイントのハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SecurityHeaders → LoggingMiddleware → RecoveryMiddleware → RateLimitMiddleware
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	resourceHandler := NewResourceHandler(deps.Library, deps.Poller, deps.PollerContext, deps.PollIntervals)
	notificationHandler := NewNotificationHandler(deps.Notifications)
	downloadHandler := NewDownloadHandler(deps.Library, deps.Downloader)
	sessionHandler := NewSessionHandler(deps.CacheCleaner, deps.Poller, deps.Notifications)

	// --- レート制限の外のルート ---

	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)、変更系はRateLimit(Mutation)を追加
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api", func(r chi.Router) {
			// 完了通知（ワンショット配信）
			r.Get("/notifications", notificationHandler.Drain)

			// セッション終了
			r.Post("/logout", sessionHandler.Logout)

			// 成果物ダウンロード
			r.With(deps.RateLimiter.MutationMiddleware()).Post("/download", downloadHandler.Download)

			// リソース管理（song / video / narrative / character）
			r.Route("/{kind}", func(r chi.Router) {
				r.Get("/", resourceHandler.List)
				r.Get("/cached", resourceHandler.Cached)

				// 生成・削除は専用レート制限を追加
				r.With(deps.RateLimiter.MutationMiddleware()).Post("/", resourceHandler.Create)
				r.With(deps.RateLimiter.MutationMiddleware()).Delete("/{id}", resourceHandler.Delete)
			})
		})
	})

	return r
}
