package app

import (
	"database/sql"
	"io"
	"net/http"

	"github.com/hitoshi/thefn/internal/auth"
	"github.com/hitoshi/thefn/internal/avatar"
	"github.com/hitoshi/thefn/internal/config"
	"github.com/hitoshi/thefn/internal/handler"
	"github.com/hitoshi/thefn/internal/identity"
	"github.com/hitoshi/thefn/internal/metrics"
	"github.com/hitoshi/thefn/internal/middleware"
	"github.com/hitoshi/thefn/internal/profile"
	"github.com/hitoshi/thefn/internal/provider"
	"github.com/hitoshi/thefn/internal/ratelimit"
	"github.com/hitoshi/thefn/internal/repository"
	"github.com/hitoshi/thefn/internal/security"
	"github.com/hitoshi/thefn/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// server はワイヤリング済みのHTTPハンドラーを保持する。
type server struct {
	Handler http.Handler
}

// newServer は設定とDB接続から全依存関係を組み立てる。
// outboxはローカル開発モードでマジックリンクを書き出す先。
func newServer(cfg *config.Config, db *sql.DB, outbox io.Writer) *server {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	mc := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	avatarRepo := repository.NewPostgresAvatarRepo(db)
	magicLinkRepo := repository.NewPostgresMagicLinkRequestRepo(db)
	devLinkRepo := repository.NewPostgresDevMagicLinkRepo(db)

	// 3. プロバイダの初期化
	httpClient := &http.Client{}
	var emailProvider provider.EmailProvider
	if cfg.LocalMode() {
		emailProvider = provider.NewLocalProvider(devLinkRepo, cfg.DevMagicLinkTTL, outbox)
	} else {
		emailProvider = provider.NewSupabaseClient(provider.SupabaseConfig{
			URL:     cfg.SupabaseURL,
			AnonKey: cfg.SupabaseAnonKey,
			Timeout: cfg.ProviderTimeout,
		}, httpClient, mc)
	}
	// 資格情報が未設定の場合もクライアントは生成し、呼び出し時にmisconfiguredを返す
	smsProvider := provider.NewTwilioVerifyClient(provider.TwilioConfig{
		AccountSID:       cfg.TwilioAccountSID,
		AuthToken:        cfg.TwilioAuthToken,
		VerifyServiceSID: cfg.TwilioVerifyServiceSID,
		Timeout:          cfg.ProviderTimeout,
	}, httpClient, mc)

	// 4. ドメインサービスの初期化
	identities := identity.NewStore(userRepo, identRepo, mc)
	sessions := session.NewManager(sessionRepo, session.DefaultTTL, mc)
	limiter := ratelimit.NewMagicLinkLimiter(magicLinkRepo, ratelimit.Config{
		Cooldown:    cfg.MagicLinkCooldown,
		Window:      cfg.MagicLinkWindow,
		MaxPerEmail: cfg.MagicLinkMaxPerEmail,
		MaxPerIP:    cfg.MagicLinkMaxPerIP,
		Retention:   cfg.MagicLinkRetention,
	}, mc)

	authService := auth.NewService(identities, sessions, limiter, emailProvider, smsProvider, auth.ServiceConfig{
		BaseURL:   cfg.BaseURL,
		LocalMode: cfg.LocalMode(),
	})

	pipeline := avatar.NewPipeline(avatarRepo, avatar.NewFileSampleGenerator(cfg.DataDir, cfg.AvatarTemplatePath), cfg.DataDir)
	profileService := profile.NewService(profileRepo, pipeline, security.NewTextSanitizer())

	// 5. ルーターの構築（確認コードの送信・照合はreq/min -> req/secに変換）
	otpCfg := middleware.DefaultRateLimiterConfig()
	otpCfg.Rate = rate.Limit(float64(cfg.OTPSendRatePerMin) / 60.0)
	otpCfg.Burst = cfg.OTPSendRatePerMin
	otpLimiter := middleware.NewRateLimiter(otpCfg)

	router := handler.NewRouter(&handler.RouterDeps{
		Metrics:            mc,
		Sessions:           sessions,
		CORSAllowedOrigins: middleware.ParseAllowedOrigins(cfg.CORSAllowedOrigin),
		HTTPS:              cfg.CookieSecure,
		OTPRateLimiter:     otpLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: int(sessions.TTL().Seconds()),
		},

		ProfileService: profileService,
		AvatarSamples:  pipeline,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
	})

	return &server{Handler: router}
}
