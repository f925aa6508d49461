package model

import "time"

// Session はサーバー側で保持するログインセッションを表す。
// 生のトークンは保持せず、TokenHashのみを永続化する。
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	IPAddress *string
	UserAgent *string
}

// ValidAt は指定時刻においてセッションが有効かどうかを返す。
func (s *Session) ValidAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SessionUser は有効なセッションから解決された認証済みユーザー。
// ProfileDisplayNameはプロフィール未作成の場合nil。
type SessionUser struct {
	UserID             string
	ProfileDisplayName *string
}

// HasProfile は表示名が登録済みかどうかを返す。
func (u *SessionUser) HasProfile() bool {
	return u != nil && u.ProfileDisplayName != nil && *u.ProfileDisplayName != ""
}
