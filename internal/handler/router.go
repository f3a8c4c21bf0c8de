package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	HSTS              bool
	// TrustProxyHeaders はRealIPミドルウェアを有効にする。
	TrustProxyHeaders bool
	RateLimiter       *middleware.RateLimiter
	Recorder          metrics.Recorder
	MetricsHandler    http.Handler

	// ヘルスチェック
	HealthChecker HealthChecker

	// 認証
	Providers  ProviderLookup
	Resolver   IdentityResolver
	Issuer     TokenIssuer
	Accounts   AccountGetter
	AuthConfig AuthHandlerConfig

	// タスク
	TaskService TaskServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP（TrustProxyHeaders時のみ） → Metrics → Logging → Recovery → SecurityHeaders → CORS
//	  → (保護ルートのみ) BearerAuth → RateLimit(General)
//
// ログイン開始（/auth/{provider}）にはクライアントIP単位のレート制限をかける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	if deps.Recorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Recorder))
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.Providers, deps.Resolver, deps.Issuer, deps.Accounts, deps.Recorder, deps.AuthConfig)
	taskHandler := NewTaskHandler(deps.TaskService)
	bearer := middleware.NewBearerAuthMiddleware(deps.Authenticator)

	// --- 認証不要のルート ---
	r.Get("/", Root)
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(bearer).Get("/me", authHandler.Me)
		r.With(deps.RateLimiter.LoginMiddleware()).Get("/{provider}", authHandler.Login)
		r.Get("/{provider}/callback", authHandler.Callback)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(bearer)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/todos", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/", taskHandler.CreateTask)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Put("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)
				r.Patch("/toggle", taskHandler.ToggleTask)
			})
		})
	})

	return r
}
