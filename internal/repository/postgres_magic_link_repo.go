package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/thefn/internal/model"
)

// PostgresMagicLinkRequestRepo はPostgreSQLを使用したマジックリンク発行ログのリポジトリ。
type PostgresMagicLinkRequestRepo struct {
	db *sql.DB
}

// NewPostgresMagicLinkRequestRepo はPostgresMagicLinkRequestRepoを生成する。
func NewPostgresMagicLinkRequestRepo(db *sql.DB) *PostgresMagicLinkRequestRepo {
	return &PostgresMagicLinkRequestRepo{db: db}
}

// LatestCreatedAtByEmail は指定メールの直近の発行時刻を返す。記録がない場合はnilを返す。
func (r *PostgresMagicLinkRequestRepo) LatestCreatedAtByEmail(ctx context.Context, email string) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT max(created_at) FROM email_magic_link_requests WHERE email = $1`,
		email,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest magic link request: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time
	return &t, nil
}

// CountByEmailSince はsinceより後の指定メールの発行件数を返す。
func (r *PostgresMagicLinkRequestRepo) CountByEmailSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM email_magic_link_requests WHERE email = $1 AND created_at > $2`,
		email, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count magic link requests by email: %w", err)
	}
	return count, nil
}

// CountByIPSince はsinceより後の指定IPアドレスからの発行件数を返す。
func (r *PostgresMagicLinkRequestRepo) CountByIPSince(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM email_magic_link_requests WHERE ip_address = $1 AND created_at > $2`,
		ipAddress, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count magic link requests by ip: %w", err)
	}
	return count, nil
}

// Insert は発行ログを1行追記する。
func (r *PostgresMagicLinkRequestRepo) Insert(ctx context.Context, req *model.MagicLinkRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_magic_link_requests (id, email, ip_address, created_at)
		 VALUES ($1, $2, $3, $4)`,
		req.ID, req.Email, req.IPAddress, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert magic link request: %w", err)
	}
	return nil
}

// DeleteOlderThan はbeforeより古い行を削除し、削除件数を返す。
func (r *PostgresMagicLinkRequestRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM email_magic_link_requests WHERE created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune magic link requests: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ MagicLinkRequestRepository = (*PostgresMagicLinkRequestRepo)(nil)
