// Package session はベアラートークン方式のサーバー側セッションを発行・検証・失効する。
//
// 生のトークンはクライアントにのみ渡し、DBにはSHA-256ダイジェストだけを保存する。
// 有効期限は読み取り時の条件（revoked_at IS NULL AND expires_at > now）で判定し、
// 期限切れセッションを削除する別処理は持たない。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/thefn/internal/metrics"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/repository"
)

// DefaultTTL はセッションの有効期間。
const DefaultTTL = 7 * 24 * time.Hour

// Manager はセッションの発行・検証・失効を行う。
type Manager struct {
	repo    repository.SessionRepository
	ttl     time.Duration
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewManager はManagerを生成する。ttlが0以下の場合はDefaultTTLを使う。
func NewManager(repo repository.SessionRepository, ttl time.Duration, mc metrics.MetricsCollector) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Manager{
		repo:    repo,
		ttl:     ttl,
		metrics: mc,
		now:     time.Now,
	}
}

// TTL はセッションの有効期間を返す。Cookieのmax-ageにも使う。
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// IssueInput はセッション発行時のメタデータ。
type IssueInput struct {
	UserID    string
	Method    string // 認証方式（email, phone, localdev）。メトリクスのラベルに使う
	IPAddress *string
	UserAgent *string
}

// Issue は新しいセッションを作成し、生のトークンを返す。
func (m *Manager) Issue(ctx context.Context, in IssueInput) (string, error) {
	if in.UserID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	token, err := GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now()
	sess := &model.Session{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}
	if err := m.repo.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	m.metrics.RecordSessionIssued(in.Method)
	slog.Info("session issued",
		slog.String("user_id", in.UserID),
		slog.String("session_id", sess.ID),
		slog.String("method", in.Method),
	)
	return token, nil
}

// Authenticate はトークンに対応する有効なセッションのユーザーを返す。
// 期限切れ・失効済み・存在しないトークンはいずれもnil, nilを返し、呼び出し元からは区別できない。
func (m *Manager) Authenticate(ctx context.Context, token string) (*model.SessionUser, error) {
	if token == "" {
		return nil, nil
	}
	user, err := m.repo.FindActiveUserByTokenHash(ctx, HashToken(token), m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate session: %w", err)
	}
	return user, nil
}

// Revoke はトークンに対応するセッションを失効させる。
// セッションが存在しない場合や失効済みの場合も成功として扱う。
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	revoked, err := m.repo.RevokeByTokenHash(ctx, HashToken(token), m.now())
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if revoked > 0 {
		m.metrics.RecordSessionRevoked()
		slog.Info("session revoked")
	}
	return nil
}
