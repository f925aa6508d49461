package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/thefn/internal/model"
)

const maxAvatarErrorLength = 300

// PostgresAvatarRepo はアバターモデルと生成履歴のリポジトリ。
type PostgresAvatarRepo struct {
	db *sql.DB
}

// NewPostgresAvatarRepo はPostgresAvatarRepoを生成する。
func NewPostgresAvatarRepo(db *sql.DB) *PostgresAvatarRepo {
	return &PostgresAvatarRepo{db: db}
}

// UpsertPending はアバターモデルをpending状態で作成または更新し、IDを返す。
func (r *PostgresAvatarRepo) UpsertPending(ctx context.Context, userID, provider string) (string, error) {
	now := time.Now()
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO avatar_models (id, user_id, status, provider, sample_image_path, last_error, created_at, updated_at)
		 VALUES ($1, $2, 'pending', $3, NULL, NULL, $4, $4)
		 ON CONFLICT (user_id)
		 DO UPDATE SET
		   status = 'pending',
		   provider = EXCLUDED.provider,
		   last_error = NULL,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		uuid.New().String(), userID, provider, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert avatar model: %w", err)
	}
	return id, nil
}

// MarkReady はアバターモデルをready状態にしてサンプル画像パスを記録する。
func (r *PostgresAvatarRepo) MarkReady(ctx context.Context, userID, sampleImagePath string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE avatar_models
		 SET status = 'ready', sample_image_path = $2, last_error = NULL, updated_at = $3
		 WHERE user_id = $1`,
		userID, sampleImagePath, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark avatar model ready: %w", err)
	}
	return nil
}

// MarkFailed はアバターモデルをfailed状態にしてエラーを記録する。
func (r *PostgresAvatarRepo) MarkFailed(ctx context.Context, userID, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE avatar_models
		 SET status = 'failed', last_error = $2, updated_at = $3
		 WHERE user_id = $1`,
		userID, truncatePtr(&errorMessage, maxAvatarErrorLength), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark avatar model failed: %w", err)
	}
	return nil
}

// FindByUserID は指定ユーザーのアバターモデルを取得する。見つからない場合はnilを返す。
func (r *PostgresAvatarRepo) FindByUserID(ctx context.Context, userID string) (*model.AvatarModel, error) {
	m := &model.AvatarModel{}
	var status string
	var samplePath, lastError sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, provider, sample_image_path, last_error, created_at, updated_at
		 FROM avatar_models
		 WHERE user_id = $1`,
		userID,
	).Scan(&m.ID, &m.UserID, &status, &m.Provider, &samplePath, &lastError, &m.CreatedAt, &m.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find avatar model: %w", err)
	}

	m.Status = model.AvatarStatus(status)
	m.SampleImagePath = nullStringPtr(samplePath)
	m.LastError = nullStringPtr(lastError)
	return m, nil
}

// CreateGeneration は生成履歴を1行追加する。
func (r *PostgresAvatarRepo) CreateGeneration(ctx context.Context, gen *model.AvatarGeneration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO avatar_generations (id, user_id, prompt, status, image_path, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		gen.ID, gen.UserID, gen.Prompt, string(gen.Status), gen.ImagePath,
		truncatePtr(gen.ErrorMessage, maxAvatarErrorLength), gen.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create avatar generation: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AvatarRepository = (*PostgresAvatarRepo)(nil)
