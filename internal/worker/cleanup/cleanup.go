// Package cleanup は認証関連テーブルの定期削除ジョブを提供する。
// 保持期間を過ぎたマジックリンク発行記録と、期限切れまたは使用済みのローカル開発用リンクを削除する。
// セッションは読み取り時に期限を判定するため削除対象に含めない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Config は各テーブルの保持期間。
type Config struct {
	MagicLinkRetention time.Duration // マジックリンク発行記録の保持期間
	DevLinkRetention   time.Duration // 期限切れ・使用済みの開発用リンクを残す期間
}

// DefaultConfig はデフォルトの保持期間を返す。
func DefaultConfig() Config {
	return Config{
		MagicLinkRetention: 24 * time.Hour,
		DevLinkRetention:   time.Hour,
	}
}

// target は削除対象1件分のクエリと保持期間。
type target struct {
	name      string
	query     string
	retention time.Duration
}

// CleanupJob は認証関連データの削除ジョブ。
// 何度実行しても同じ結果になる。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
	config Config
	now    func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, config Config) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:     db,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

func (j *CleanupJob) targets() []target {
	return []target{
		{
			name:      "email_magic_link_requests",
			query:     `DELETE FROM email_magic_link_requests WHERE created_at < $1`,
			retention: j.config.MagicLinkRetention,
		},
		{
			name: "dev_magic_links",
			query: `DELETE FROM dev_magic_links
			 WHERE created_at < $1 AND (expires_at < $1 OR consumed_at IS NOT NULL)`,
			retention: j.config.DevLinkRetention,
		},
	}
}

// Run は全対象テーブルの削除を実行する。
// 1件の失敗で残りを中断せず、最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	var firstErr error
	var total int64
	for _, t := range j.targets() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cleanup canceled: %w", err)
		}

		deleted, err := j.runTarget(ctx, t, start)
		if err != nil {
			j.logger.Error("cleanup target failed",
				slog.String("table", t.name),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += deleted
	}

	j.logger.Info("cleanup job completed",
		slog.Int64("deleted_count", total),
		slog.Duration("duration", time.Since(start)),
	)
	return firstErr
}

func (j *CleanupJob) runTarget(ctx context.Context, t target, now time.Time) (int64, error) {
	cutoff := now.Add(-t.retention)

	result, err := j.db.ExecContext(ctx, t.query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up %s: %w", t.name, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count for %s: %w", t.name, err)
	}

	j.logger.Info("cleanup target completed",
		slog.String("table", t.name),
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", t.retention),
	)
	return deleted, nil
}
