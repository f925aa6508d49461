package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 認証プロバイダの種別。
const (
	AuthProviderSupabase = "supabase"
	AuthProviderLocal    = "local"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth provider
	AuthProvider    string
	SupabaseURL     string
	SupabaseAnonKey string
	ProviderTimeout time.Duration

	// Twilio Verify（未設定の場合SMSは利用不可）
	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioVerifyServiceSID string

	// Magic link rate limit
	MagicLinkCooldown    time.Duration
	MagicLinkWindow      time.Duration
	MagicLinkMaxPerEmail int
	MagicLinkMaxPerIP    int
	MagicLinkRetention   time.Duration
	DevMagicLinkTTL      time.Duration

	// OTP endpoints rate limit (per client IP)
	OTPSendRatePerMin int

	// Avatar
	DataDir            string
	AvatarTemplatePath string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigin string
}

// LocalMode はローカル開発用の認証プロバイダが選択されているかどうかを返す。
func (c *Config) LocalMode() bool {
	return c.AuthProvider == AuthProviderLocal
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.AuthProvider = strings.ToLower(getEnvString("AUTH_PROVIDER", AuthProviderSupabase))
	switch cfg.AuthProvider {
	case AuthProviderSupabase:
		cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
		if cfg.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
	case AuthProviderLocal:
	default:
		return nil, fmt.Errorf("unsupported AUTH_PROVIDER: %q (want %q or %q)", cfg.AuthProvider, AuthProviderSupabase, AuthProviderLocal)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.TwilioVerifyServiceSID = os.Getenv("TWILIO_VERIFY_SERVICE_SID")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.MagicLinkCooldown = getEnvDuration("MAGIC_LINK_COOLDOWN", 60*time.Second)
	cfg.MagicLinkWindow = getEnvDuration("MAGIC_LINK_WINDOW", 15*time.Minute)
	cfg.MagicLinkMaxPerEmail = getEnvInt("MAGIC_LINK_MAX_PER_EMAIL", 5)
	cfg.MagicLinkMaxPerIP = getEnvInt("MAGIC_LINK_MAX_PER_IP", 20)
	cfg.MagicLinkRetention = getEnvDuration("MAGIC_LINK_RETENTION", 24*time.Hour)
	cfg.DevMagicLinkTTL = getEnvDuration("DEV_MAGIC_LINK_TTL", 15*time.Minute)
	cfg.OTPSendRatePerMin = getEnvInt("OTP_SEND_RATE_PER_MIN", 5)
	cfg.DataDir = getEnvString("DATA_DIR", "./data")
	cfg.AvatarTemplatePath = getEnvString("AVATAR_TEMPLATE_PATH", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// TwilioConfigured はTwilio Verifyの資格情報が揃っているかどうかを返す。
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioVerifyServiceSID != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
