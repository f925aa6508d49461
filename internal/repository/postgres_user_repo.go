package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/thefn/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// CreateWithIdentity はusersとuser_identitiesへ同一トランザクションで挿入する。
// 同じidentityへの同時初回登録では後続側が一意制約で失敗し、ユーザー行ごとロールバックされる。
// その場合の戻り値はErrUniqueViolationをラップしている。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			user.ID, string(user.Status), user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_identities (id, user_id, type, normalized_value, verified_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			identity.ID, identity.UserID, string(identity.Type), identity.NormalizedValue,
			identity.VerifiedAt, identity.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert identity: %w", wrapUniqueViolation(err))
		}
		return nil
	})
}

var _ UserRepository = (*PostgresUserRepo)(nil)
