package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/thefn/internal/metrics"
	"github.com/hitoshi/thefn/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector
	Sessions           middleware.SessionAuthenticator
	CORSAllowedOrigins []string
	HTTPS              bool
	OTPRateLimiter     *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール
	ProfileService ProfileServiceInterface
	AvatarSamples  AvatarSampleLocator

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → RealIP → Logging → SecurityHeaders → CORS → (Session | OptionalSession) → (OTP RateLimit)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HTTPS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.AvatarSamples)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/send-email-code", authHandler.SendEmailCode)
		r.Post("/complete-magic-link", authHandler.CompleteMagicLink)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/dev-identities", authHandler.DevIdentities)

		// SMS送信・検証はクライアントIP単位で絞る
		r.Group(func(r chi.Router) {
			if deps.OTPRateLimiter != nil {
				r.Use(deps.OTPRateLimiter.Middleware())
			}
			r.Post("/send-code", authHandler.SendCode)
			r.Post("/verify-code", authHandler.VerifyCode)
		})

		r.With(middleware.NewOptionalSessionMiddleware(deps.Sessions)).Get("/next", authHandler.Next)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Post("/", profileHandler.SaveProfile)
		})
		r.Get("/api/avatar/sample", profileHandler.AvatarSample)
	})

	return r
}
