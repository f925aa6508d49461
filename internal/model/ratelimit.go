package model

import "time"

// MagicLinkRequest はマジックリンク発行要求の追記専用ログ1行。
type MagicLinkRequest struct {
	ID        string
	Email     string
	IPAddress *string
	CreatedAt time.Time
}

// RateLimitReason はレート制限の判定理由。
type RateLimitReason string

const (
	RateLimitReasonOK               RateLimitReason = "ok"
	RateLimitReasonCooldown         RateLimitReason = "cooldown"
	RateLimitReasonEmailWindowLimit RateLimitReason = "email_window_limit"
	RateLimitReasonIPWindowLimit    RateLimitReason = "ip_window_limit"
)

// RateLimitDecision はマジックリンク発行可否の判定結果。
type RateLimitDecision struct {
	Allowed           bool
	RetryAfterSeconds int
	Reason            RateLimitReason
}

// DevMagicLink はローカル開発モードで発行する使い捨てリンク。
type DevMagicLink struct {
	ID         string
	Email      string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}
