package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/thefn/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByTypeAndValue は種別と正規化済みの値でidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByTypeAndValue(ctx context.Context, identityType model.IdentityType, normalizedValue string) (*model.Identity, error) {
	identity := &model.Identity{}
	var typ string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, normalized_value, verified_at, created_at
		 FROM user_identities
		 WHERE type = $1 AND normalized_value = $2`,
		string(identityType), normalizedValue,
	).Scan(&identity.ID, &identity.UserID, &typ, &identity.NormalizedValue, &identity.VerifiedAt, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	identity.Type = model.IdentityType(typ)
	return identity, nil
}

// ListRecentEmails は作成日時の新しい順にメールidentityを返す。
func (r *PostgresIdentityRepo) ListRecentEmails(ctx context.Context, limit int) ([]model.RecentEmailIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ui.normalized_value, p.display_name
		 FROM user_identities ui
		 LEFT JOIN profiles p ON p.user_id = ui.user_id
		 WHERE ui.type = 'email'
		 ORDER BY ui.created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent email identities: %w", err)
	}
	defer rows.Close()

	var result []model.RecentEmailIdentity
	for rows.Next() {
		var item model.RecentEmailIdentity
		var displayName sql.NullString
		if err := rows.Scan(&item.Email, &displayName); err != nil {
			return nil, fmt.Errorf("failed to scan identity row: %w", err)
		}
		if displayName.Valid {
			name := displayName.String
			item.DisplayName = &name
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identity rows: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
