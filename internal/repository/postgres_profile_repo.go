package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/thefn/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	p := &model.Profile{}
	var handle, fullName, bio sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, handle, display_name, full_name, bio, created_at, updated_at
		 FROM profiles
		 WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &handle, &p.DisplayName, &fullName, &bio, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	p.Handle = nullStringPtr(handle)
	p.FullName = nullStringPtr(fullName)
	p.Bio = nullStringPtr(bio)
	return p, nil
}

// Upsert はユーザーごとに1件のプロフィールを作成または更新する。
// ハンドルの一意インデックスに違反した場合はErrUniqueViolationをラップして返す。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, handle, display_name, full_name, bio, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id)
		 DO UPDATE SET
		   handle = EXCLUDED.handle,
		   display_name = EXCLUDED.display_name,
		   full_name = EXCLUDED.full_name,
		   bio = EXCLUDED.bio,
		   updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Handle, p.DisplayName, p.FullName, p.Bio, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", wrapUniqueViolation(err))
	}
	return nil
}

// IsHandleTaken は他ユーザーが大文字小文字を区別せず同じハンドルを使っているかを返す。
// excludeUserIDが空の場合は全ユーザーを対象とする。
func (r *PostgresProfileRepo) IsHandleTaken(ctx context.Context, handle, excludeUserID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM profiles
		   WHERE lower(handle) = $1
		     AND ($2 = '' OR user_id <> $2)
		 )`,
		strings.ToLower(handle), excludeUserID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check handle: %w", err)
	}
	return exists, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
