// Package identity は検証済み連絡先（メール・電話番号）とユーザーIDの対応を管理する。
//
// 同じ正規化済みidentityに対しては、同時に初回リクエストが来ても
// 常に1人のユーザーだけが作られる。競合の検出はDBの一意制約に任せ、
// 挿入に失敗した側は再読込で勝者のユーザーIDを得る。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/thefn/internal/metrics"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/repository"
)

// ErrInconsistent は一意制約違反の後の再読込でもidentityが見つからなかったことを表す。
// 一意制約が正しく設定されていれば発生しない。
var ErrInconsistent = errors.New("identity missing after unique violation")

// Store はidentityの解決と作成を行う。
type Store struct {
	userRepo  repository.UserRepository
	identRepo repository.IdentityRepository
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewStore はStoreを生成する。mcがnilの場合はメトリクスを記録しない。
func NewStore(userRepo repository.UserRepository, identRepo repository.IdentityRepository, mc metrics.MetricsCollector) *Store {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Store{
		userRepo:  userRepo,
		identRepo: identRepo,
		metrics:   mc,
		now:       time.Now,
	}
}

// ResolveOrCreateUser は正規化済みのidentityに対応するユーザーIDを返す。
// 未登録の場合はユーザーとidentityを同一トランザクションで作成する。
func (s *Store) ResolveOrCreateUser(ctx context.Context, identityType model.IdentityType, normalizedValue string) (string, error) {
	if !identityType.Valid() {
		return "", fmt.Errorf("unknown identity type %q", identityType)
	}
	if normalizedValue == "" {
		return "", fmt.Errorf("identity value is required")
	}

	existing, err := s.identRepo.FindByTypeAndValue(ctx, identityType, normalizedValue)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if existing != nil {
		return existing.UserID, nil
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Status:    model.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:              uuid.New().String(),
		UserID:          user.ID,
		Type:            identityType,
		NormalizedValue: normalizedValue,
		VerifiedAt:      now,
		CreatedAt:       now,
	}

	err = s.userRepo.CreateWithIdentity(ctx, user, identity)
	if err == nil {
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("identity_type", string(identityType)),
		)
		return user.ID, nil
	}
	if !repository.IsUniqueViolation(err) {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	// 競合した側のトランザクションはコミット済みのため、再読込で必ず見つかる
	winner, err := s.identRepo.FindByTypeAndValue(ctx, identityType, normalizedValue)
	if err != nil {
		return "", fmt.Errorf("failed to re-read identity after conflict: %w", err)
	}
	if winner == nil {
		slog.Error("identity not found after unique violation",
			slog.String("identity_type", string(identityType)),
		)
		return "", ErrInconsistent
	}

	s.metrics.RecordIdentityRaceRecovered()
	slog.Info("identity creation race recovered",
		slog.String("user_id", winner.UserID),
		slog.String("identity_type", string(identityType)),
	)
	return winner.UserID, nil
}

// ListRecentEmails は最近作成されたメールidentityを表示名付きで返す。
func (s *Store) ListRecentEmails(ctx context.Context, limit int) ([]model.RecentEmailIdentity, error) {
	if limit <= 0 {
		limit = 8
	}
	items, err := s.identRepo.ListRecentEmails(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent emails: %w", err)
	}
	return items, nil
}
