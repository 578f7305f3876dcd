package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/resumetrack/internal/metrics"
	"github.com/hitoshi/resumetrack/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	Gatherer          prometheus.Gatherer

	// ヘルスチェック
	DB    Pinger
	Redis Pinger

	// サービス
	Sessions   SessionService
	Activities ActivityRecorder
	Analytics  AnalyticsService
	Quota      QuotaService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  /api/analytics/*: Identity → RateLimit
//
// /health と /metrics は識別ヘッダーを要求しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.Middleware(m))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	sessionHandler := NewSessionHandler(deps.Sessions)
	activityHandler := NewActivityHandler(deps.Activities, deps.Analytics)
	systemHandler := NewSystemHandler(deps.Analytics)
	usageHandler := NewUsageHandler(deps.Quota)

	// --- 識別不要のルート ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.DB, deps.Redis))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 識別が必要なルート ---
	r.Route("/api/analytics", func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Post("/session", sessionHandler.Handle)

		r.Post("/activity", activityHandler.Record)
		r.Get("/activity", activityHandler.UserAnalytics)

		r.Get("/system", systemHandler.Summary)

		r.Get("/usage", usageHandler.Check)
		r.Post("/usage", usageHandler.Consume)
	})

	return r
}
