package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/thefn/internal/model"
)

const (
	maxIPAddressLength = 120
	maxUserAgentLength = 500
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
// IPアドレスとUser-Agentは長さを切り詰めて保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6, $7)`,
		session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt,
		truncatePtr(session.IPAddress, maxIPAddressLength),
		truncatePtr(session.UserAgent, maxUserAgentLength),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", wrapUniqueViolation(err))
	}
	return nil
}

// FindActiveUserByTokenHash はtoken_hashに一致する有効なセッションのユーザーを返す。
// 失効済み・期限切れ・存在しないセッションはいずれもnilを返し、区別しない。
func (r *PostgresSessionRepo) FindActiveUserByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.SessionUser, error) {
	var user model.SessionUser
	var displayName sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, p.display_name
		 FROM sessions s
		 INNER JOIN users u ON u.id = s.user_id
		 LEFT JOIN profiles p ON p.user_id = u.id
		 WHERE s.token_hash = $1
		   AND s.revoked_at IS NULL
		   AND s.expires_at > $2
		 LIMIT 1`,
		tokenHash, now,
	).Scan(&user.UserID, &displayName)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if displayName.Valid {
		name := displayName.String
		user.ProfileDisplayName = &name
	}
	return &user, nil
}

// RevokeByTokenHash は未失効のセッションにrevoked_atを設定する。
func (r *PostgresSessionRepo) RevokeByTokenHash(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET revoked_at = $1
		 WHERE token_hash = $2
		   AND revoked_at IS NULL`,
		now, tokenHash,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// truncatePtr は文字列ポインタの値をmaxバイト以内に切り詰める。
// マルチバイト文字の途中では切らない。
func truncatePtr(s *string, max int) *string {
	if s == nil {
		return nil
	}
	v := *s
	if len(v) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(v[cut]) {
			cut--
		}
		v = v[:cut]
	}
	return &v
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
