// Package profile はプロフィールの保存と取得を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/repository"
	"github.com/hitoshi/thefn/internal/security"
)

// 入力の上限文字数（rune単位）。
const (
	MaxDisplayNameLength = 40
	MaxBioLength         = 220
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// AvatarRunner はプロフィール保存後にアバター生成を実行する。
type AvatarRunner interface {
	Run(ctx context.Context, userID string) (model.AvatarStatus, error)
}

// Service はプロフィールのサービス層。
type Service struct {
	repo      repository.ProfileRepository
	avatars   AvatarRunner
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。avatarsがnilの場合はアバター生成を行わない。
func NewService(repo repository.ProfileRepository, avatars AvatarRunner, sanitizer *security.TextSanitizer) *Service {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Service{
		repo:      repo,
		avatars:   avatars,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// SaveInput はプロフィール保存の入力。
type SaveInput struct {
	Handle      string
	DisplayName string
	Bio         string
}

// NormalizeHandle はハンドルを小文字化し先頭の@を除いて検証する。
// 3〜20文字の英小文字・数字・アンダースコアでなければfalseを返す。
func NormalizeHandle(raw string) (string, bool) {
	handle := strings.TrimLeft(strings.ToLower(strings.TrimSpace(raw)), "@")
	if !handlePattern.MatchString(handle) {
		return "", false
	}
	return handle, true
}

// Save は入力を検証・サニタイズしてプロフィールを作成または更新し、アバター生成を起動する。
// アバター生成の失敗は保存結果に影響しない。
func (s *Service) Save(ctx context.Context, userID string, in SaveInput) (*model.Profile, error) {
	handle, ok := NormalizeHandle(in.Handle)
	if !ok {
		return nil, model.NewValidationError("Handle must be 3-20 chars using letters, numbers, or _")
	}
	displayName := s.sanitizer.Sanitize(in.DisplayName, MaxDisplayNameLength)
	if displayName == "" {
		return nil, model.NewValidationError("Name is required")
	}
	var bio *string
	if b := s.sanitizer.Sanitize(in.Bio, MaxBioLength); b != "" {
		bio = &b
	}

	taken, err := s.repo.IsHandleTaken(ctx, handle, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check handle: %w", err)
	}
	if taken {
		return nil, model.NewHandleTakenError()
	}

	existing, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	now := s.now()
	p := &model.Profile{
		UserID:      userID,
		Handle:      &handle,
		DisplayName: displayName,
		Bio:         bio,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		p.FullName = existing.FullName
		p.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Upsert(ctx, p); err != nil {
		// 確認後に同じハンドルが登録された場合
		if repository.IsUniqueViolation(err) {
			return nil, model.NewHandleTakenError()
		}
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	slog.Info("profile saved", slog.String("user_id", userID))

	if s.avatars != nil {
		if _, err := s.avatars.Run(ctx, userID); err != nil {
			slog.Warn("avatar pipeline failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	return p, nil
}

// Get は指定ユーザーのプロフィールを返す。未作成の場合はnil。
func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}
