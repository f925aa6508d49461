package avatar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/repository"
)

const samplePrompt = "sample avatar preview"

// ErrSampleNotFound はサンプル画像がまだ生成されていないことを表す。
var ErrSampleNotFound = errors.New("avatar sample not found")

// Pipeline はアバターモデルの状態遷移（pending → ready/failed）と生成履歴を管理する。
type Pipeline struct {
	repo      repository.AvatarRepository
	generator Generator
	dataDir   string
	now       func() time.Time
}

// NewPipeline はPipelineを生成する。
func NewPipeline(repo repository.AvatarRepository, generator Generator, dataDir string) *Pipeline {
	return &Pipeline{
		repo:      repo,
		generator: generator,
		dataDir:   dataDir,
		now:       time.Now,
	}
}

// Run はサンプル生成を1回実行し、結果をアバターモデルと生成履歴に記録する。
// 生成の失敗はfailed状態として記録し、エラーとしては返さない。
// 返すエラーは状態の記録に失敗した場合のみ。
func (p *Pipeline) Run(ctx context.Context, userID string) (model.AvatarStatus, error) {
	if _, err := p.repo.UpsertPending(ctx, userID, p.generator.Name()); err != nil {
		return "", fmt.Errorf("failed to mark avatar pending: %w", err)
	}
	if err := p.recordGeneration(ctx, userID, model.AvatarStatusPending, nil, nil); err != nil {
		return "", err
	}

	result := p.generator.Generate(ctx, userID)
	if result.OK {
		if err := p.repo.MarkReady(ctx, userID, result.Path); err != nil {
			return "", fmt.Errorf("failed to mark avatar ready: %w", err)
		}
		if err := p.recordGeneration(ctx, userID, model.AvatarStatusReady, &result.Path, nil); err != nil {
			return "", err
		}
		slog.Info("avatar sample generated", slog.String("user_id", userID))
		return model.AvatarStatusReady, nil
	}

	msg := "unknown error"
	if result.Err != nil {
		msg = result.Err.Error()
	}
	slog.Warn("avatar sample generation failed",
		slog.String("user_id", userID),
		slog.String("error", msg),
	)
	if err := p.repo.MarkFailed(ctx, userID, msg); err != nil {
		return "", fmt.Errorf("failed to mark avatar failed: %w", err)
	}
	if err := p.recordGeneration(ctx, userID, model.AvatarStatusFailed, nil, &msg); err != nil {
		return "", err
	}
	return model.AvatarStatusFailed, nil
}

func (p *Pipeline) recordGeneration(ctx context.Context, userID string, status model.AvatarStatus, imagePath, errMsg *string) error {
	gen := &model.AvatarGeneration{
		ID:           uuid.New().String(),
		UserID:       userID,
		Prompt:       samplePrompt,
		Status:       status,
		ImagePath:    imagePath,
		ErrorMessage: errMsg,
		CreatedAt:    p.now(),
	}
	if err := p.repo.CreateGeneration(ctx, gen); err != nil {
		return fmt.Errorf("failed to record avatar generation: %w", err)
	}
	return nil
}

// SamplePath はユーザーのサンプル画像の絶対パスを返す。
// 未生成の場合はErrSampleNotFoundを返す。
func (p *Pipeline) SamplePath(ctx context.Context, userID string) (string, error) {
	m, err := p.repo.FindByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find avatar model: %w", err)
	}
	if m == nil || m.SampleImagePath == nil || *m.SampleImagePath == "" {
		return "", ErrSampleNotFound
	}
	return filepath.Join(p.dataDir, *m.SampleImagePath), nil
}
