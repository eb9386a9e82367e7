// Package handler はUIシェル向けのローカルJSON HTTP APIを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/directorio/internal/middleware"
)

// Core はHTTP APIが操作するクライアントコア。client.Clientが満たす。
type Core interface {
	NavigationCore
	EntryCore
	ProfileCore
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Core Core

	// ミドルウェア依存
	Identity          middleware.CurrentIdentityProvider
	CORSAllowedOrigin string
	HTTPMetrics       middleware.HTTPRecorder // nilの場合は記録しない
	Logger            *slog.Logger            // nilの場合はslog.Default()

	HealthCheckers []HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// プロフィールのルートはさらにRequireIdentityを通す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	navHandler := NewNavigationHandler(deps.Core)
	entryHandler := NewEntryHandler(deps.Core)
	profileHandler := NewProfileHandler(deps.Core)

	r.Get("/health", healthHandler(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/navigation", func(r chi.Router) {
			r.Get("/", navHandler.Get)
			r.Post("/navigate", navHandler.Navigate)
			r.Post("/back", navHandler.Back)
		})

		r.Post("/register", entryHandler.Register)
		r.Post("/login", entryHandler.Login)
		r.Post("/logout", entryHandler.Logout)

		// --- サインイン済みのidentityが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireIdentityMiddleware(deps.Identity))

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.Get)
				r.Put("/", profileHandler.Update)
				r.Get("/edit", profileHandler.EditForm)
				r.Post("/edit", profileHandler.BeginEdit)
			})
		})
	})

	return r
}
