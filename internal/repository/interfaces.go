// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/thefn/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// identityの一意制約に違反した場合はErrUniqueViolationをラップしたエラーを返す。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error
}

// IdentityRepository は検証済み連絡先の永続化インターフェース。
type IdentityRepository interface {
	// FindByTypeAndValue は種別と正規化済みの値でidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByTypeAndValue(ctx context.Context, identityType model.IdentityType, normalizedValue string) (*model.Identity, error)

	// ListRecentEmails は作成日時の新しい順にメールidentityを返す。
	ListRecentEmails(ctx context.Context, limit int) ([]model.RecentEmailIdentity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindActiveUserByTokenHash はtoken_hashに一致し、失効しておらず期限内のセッションを
	// プロフィール表示名とJOINして返す。該当しない場合はnilを返す。
	FindActiveUserByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.SessionUser, error)

	// RevokeByTokenHash は未失効のセッションにrevoked_atを設定する。
	// 該当セッションがない場合もエラーにしない。更新件数を返す。
	RevokeByTokenHash(ctx context.Context, tokenHash string, now time.Time) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// Upsert はユーザーごとに1件のプロフィールを作成または更新する。
	Upsert(ctx context.Context, profile *model.Profile) error

	// IsHandleTaken は他ユーザーが大文字小文字を区別せず同じハンドルを使っているかを返す。
	IsHandleTaken(ctx context.Context, handle, excludeUserID string) (bool, error)
}

// MagicLinkRequestRepository はマジックリンク発行ログの永続化インターフェース。
type MagicLinkRequestRepository interface {
	// LatestCreatedAtByEmail は指定メールの直近の発行時刻を返す。記録がない場合はnilを返す。
	LatestCreatedAtByEmail(ctx context.Context, email string) (*time.Time, error)

	// CountByEmailSince はsinceより後の指定メールの発行件数を返す。
	CountByEmailSince(ctx context.Context, email string, since time.Time) (int, error)

	// CountByIPSince はsinceより後の指定IPアドレスからの発行件数を返す。
	CountByIPSince(ctx context.Context, ipAddress string, since time.Time) (int, error)

	// Insert は発行ログを1行追記する。
	Insert(ctx context.Context, req *model.MagicLinkRequest) error

	// DeleteOlderThan はbeforeより古い行を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// DevMagicLinkRepository はローカル開発用マジックリンクの永続化インターフェース。
type DevMagicLinkRepository interface {
	// Create は使い捨てリンクを保存する。
	Create(ctx context.Context, link *model.DevMagicLink) error

	// Consume は未使用かつ期限内のリンクを使用済みにし、メールアドレスを返す。
	// 該当しない場合は空文字列を返す。
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)
}

// AvatarRepository はアバターモデルと生成履歴の永続化インターフェース。
type AvatarRepository interface {
	// UpsertPending はアバターモデルをpending状態で作成または更新し、IDを返す。
	UpsertPending(ctx context.Context, userID, provider string) (string, error)

	// MarkReady はアバターモデルをready状態にしてサンプル画像パスを記録する。
	MarkReady(ctx context.Context, userID, sampleImagePath string) error

	// MarkFailed はアバターモデルをfailed状態にしてエラーを記録する。
	MarkFailed(ctx context.Context, userID, errorMessage string) error

	// FindByUserID は指定ユーザーのアバターモデルを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.AvatarModel, error)

	// CreateGeneration は生成履歴を1行追加する。
	CreateGeneration(ctx context.Context, gen *model.AvatarGeneration) error
}
