package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/thefn/internal/model"
)

// PostgresDevMagicLinkRepo はローカル開発用マジックリンクのリポジトリ。
type PostgresDevMagicLinkRepo struct {
	db *sql.DB
}

// NewPostgresDevMagicLinkRepo はPostgresDevMagicLinkRepoを生成する。
func NewPostgresDevMagicLinkRepo(db *sql.DB) *PostgresDevMagicLinkRepo {
	return &PostgresDevMagicLinkRepo{db: db}
}

// Create は使い捨てリンクを保存する。
func (r *PostgresDevMagicLinkRepo) Create(ctx context.Context, link *model.DevMagicLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dev_magic_links (id, email, token_hash, created_at, expires_at, consumed_at)
		 VALUES ($1, $2, $3, $4, $5, NULL)`,
		link.ID, link.Email, link.TokenHash, link.CreatedAt, link.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dev magic link: %w", err)
	}
	return nil
}

// Consume は未使用かつ期限内のリンクを1回の更新で使用済みにし、メールアドレスを返す。
// 同時に2回使用されても、成功するのは1回のみ。
func (r *PostgresDevMagicLinkRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx,
		`UPDATE dev_magic_links
		 SET consumed_at = $2
		 WHERE token_hash = $1
		   AND consumed_at IS NULL
		   AND expires_at > $2
		 RETURNING email`,
		tokenHash, now,
	).Scan(&email)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume dev magic link: %w", err)
	}
	return email, nil
}

// compile-time interface check
var _ DevMagicLinkRepository = (*PostgresDevMagicLinkRepo)(nil)
