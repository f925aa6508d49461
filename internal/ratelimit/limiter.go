// Package ratelimit はマジックリンク発行のレート制限を提供する。
//
// 発行ログ（email_magic_link_requests）への追記と件数集計で判定する。
// 判定は次の順に行い、最初に拒否したゲートの理由を返す。
//  1. 同じメールの直近発行からのクールダウン
//  2. メールごとの時間窓内の上限
//  3. IPアドレスごとの時間窓内の上限（IPが不明な場合は省略）
//
// 拒否した要求はログに記録しない。集計と追記はアトミックではないため、
// 高い並行度では上限をわずかに超えることがある。
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/thefn/internal/metrics"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/repository"
)

// Config はレート制限のしきい値。
type Config struct {
	Cooldown    time.Duration
	Window      time.Duration
	MaxPerEmail int
	MaxPerIP    int
	Retention   time.Duration
}

// DefaultConfig はデフォルトのしきい値を返す。
func DefaultConfig() Config {
	return Config{
		Cooldown:    60 * time.Second,
		Window:      15 * time.Minute,
		MaxPerEmail: 5,
		MaxPerIP:    20,
		Retention:   24 * time.Hour,
	}
}

// MagicLinkLimiter はマジックリンク発行要求を許可または拒否する。
type MagicLinkLimiter struct {
	repo    repository.MagicLinkRequestRepository
	cfg     Config
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewMagicLinkLimiter はMagicLinkLimiterを生成する。
func NewMagicLinkLimiter(repo repository.MagicLinkRequestRepository, cfg Config, mc metrics.MetricsCollector) *MagicLinkLimiter {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &MagicLinkLimiter{
		repo:    repo,
		cfg:     cfg,
		metrics: mc,
		now:     time.Now,
	}
}

// Consume は正規化済みメールアドレスとIPアドレスで発行可否を判定する。
// 許可した場合のみ発行ログを追記し、保持期間を過ぎた行を削除する。
func (l *MagicLinkLimiter) Consume(ctx context.Context, email string, ipAddress *string) (model.RateLimitDecision, error) {
	now := l.now()

	decision, err := l.evaluate(ctx, email, ipAddress, now)
	if err != nil {
		return model.RateLimitDecision{}, err
	}
	if !decision.Allowed {
		l.metrics.RecordMagicLinkRequest(string(decision.Reason))
		return decision, nil
	}

	if err := l.repo.Insert(ctx, &model.MagicLinkRequest{
		ID:        uuid.New().String(),
		Email:     email,
		IPAddress: ipAddress,
		CreatedAt: now,
	}); err != nil {
		return model.RateLimitDecision{}, fmt.Errorf("failed to record magic link request: %w", err)
	}
	l.metrics.RecordMagicLinkRequest(string(decision.Reason))

	// 古い行の削除に失敗しても発行自体は許可する
	if l.cfg.Retention > 0 {
		if _, err := l.repo.DeleteOlderThan(ctx, now.Add(-l.cfg.Retention)); err != nil {
			slog.Warn("failed to prune magic link requests", slog.String("error", err.Error()))
		}
	}

	return decision, nil
}

func (l *MagicLinkLimiter) evaluate(ctx context.Context, email string, ipAddress *string, now time.Time) (model.RateLimitDecision, error) {
	latest, err := l.repo.LatestCreatedAtByEmail(ctx, email)
	if err != nil {
		return model.RateLimitDecision{}, fmt.Errorf("failed to read latest magic link request: %w", err)
	}
	if latest != nil {
		elapsed := now.Sub(*latest)
		if elapsed < l.cfg.Cooldown {
			return reject(model.RateLimitReasonCooldown, l.cfg.Cooldown-elapsed), nil
		}
	}

	since := now.Add(-l.cfg.Window)
	emailCount, err := l.repo.CountByEmailSince(ctx, email, since)
	if err != nil {
		return model.RateLimitDecision{}, fmt.Errorf("failed to count magic link requests by email: %w", err)
	}
	if emailCount >= l.cfg.MaxPerEmail {
		return reject(model.RateLimitReasonEmailWindowLimit, l.cfg.Window), nil
	}

	if ipAddress != nil && *ipAddress != "" {
		ipCount, err := l.repo.CountByIPSince(ctx, *ipAddress, since)
		if err != nil {
			return model.RateLimitDecision{}, fmt.Errorf("failed to count magic link requests by ip: %w", err)
		}
		if ipCount >= l.cfg.MaxPerIP {
			return reject(model.RateLimitReasonIPWindowLimit, l.cfg.Window), nil
		}
	}

	return model.RateLimitDecision{Allowed: true, Reason: model.RateLimitReasonOK}, nil
}

// reject は拒否の判定を返す。待ち時間は秒単位に切り上げ、最低1秒とする。
func reject(reason model.RateLimitReason, wait time.Duration) model.RateLimitDecision {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return model.RateLimitDecision{
		Allowed:           false,
		RetryAfterSeconds: seconds,
		Reason:            reason,
	}
}
