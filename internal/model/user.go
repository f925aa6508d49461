// Package model はドメインモデルを定義する。
package model

import "time"

// UserStatus はユーザーの状態を表す。
type UserStatus string

const (
	// UserStatusActive は通常利用可能なユーザー。
	UserStatusActive UserStatus = "active"
)

// User はサービス利用ユーザーを表す。
// 検証済みidentityごとに1回だけ作成され、通常フローでは削除されない。
type User struct {
	ID        string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdentityType は検証済み連絡先の種別。
type IdentityType string

const (
	IdentityTypeEmail IdentityType = "email"
	IdentityTypePhone IdentityType = "phone"
)

// Valid はサポート対象の種別かどうかを返す。
func (t IdentityType) Valid() bool {
	return t == IdentityTypeEmail || t == IdentityTypePhone
}

// Identity は検証済みの連絡先（メールアドレス・電話番号）とユーザーの紐付けを表す。
// (Type, NormalizedValue) の組はDBの一意制約で1ユーザーに限定される。
type Identity struct {
	ID              string
	UserID          string
	Type            IdentityType
	NormalizedValue string
	VerifiedAt      time.Time
	CreatedAt       time.Time
}

// RecentEmailIdentity はローカル開発用のidentity一覧の1行。
type RecentEmailIdentity struct {
	Email       string
	DisplayName *string
}
