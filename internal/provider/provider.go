// Package provider は外部の認証プロバイダ（メール・SMS）のクライアントを提供する。
//
// すべての呼び出しはタイムアウト付きで行い、失敗は*Errorとして返す。
// 呼び出し元はerrors.AsでKindを取り出して扱いを決める。自動リトライはしない。
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout は外部呼び出し1回あたりのタイムアウト。
const DefaultTimeout = 10 * time.Second

// Kind はプロバイダ失敗の種別。
type Kind string

const (
	// KindMisconfigured は設定不足・認証情報の誤り。運用側の対応が必要。
	KindMisconfigured Kind = "misconfigured"
	// KindRejected はプロバイダが要求を処理できなかった。再試行可能。
	KindRejected Kind = "rejected"
	// KindRateLimited はプロバイダ側のレート制限。
	KindRateLimited Kind = "rate_limited"
	// KindDenied は検証の拒否。利用者はフローをやり直す必要がある。
	KindDenied Kind = "denied"
	// KindTimeout はタイムアウト。
	KindTimeout Kind = "timeout"
)

// Error はプロバイダ呼び出しの失敗を表す。
type Error struct {
	Provider string
	Kind     Kind
	Message  string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はerrが*Errorであればその種別を返す。
func KindOf(err error) (Kind, bool) {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind, true
	}
	return "", false
}

// VerifiedEmail は検証済みのメールアドレス。
type VerifiedEmail struct {
	Email string
}

// EmailProvider はマジックリンクの送信と検証を行う。
type EmailProvider interface {
	// Name はメトリクスとログに使うプロバイダ名を返す。
	Name() string
	// SendMagicLink はredirectURLに戻るマジックリンクを送信する。
	SendMagicLink(ctx context.Context, email, redirectURL string) error
	// VerifyMagicLink はコールバックのトークンハッシュを検証し、メールアドレスを返す。
	VerifyMagicLink(ctx context.Context, tokenHash, linkType string) (VerifiedEmail, error)
	// EmailFromAccessToken はプロバイダのアクセストークンからメールアドレスを解決する。
	EmailFromAccessToken(ctx context.Context, accessToken string) (VerifiedEmail, error)
}

// SMSProvider はSMSによる確認コードの送信と照合を行う。
type SMSProvider interface {
	Name() string
	// SendVerificationCode はE.164形式の電話番号に確認コードを送信する。
	SendVerificationCode(ctx context.Context, phone string) error
	// CheckVerificationCode はコードを照合し、承認されたかを返す。
	CheckVerificationCode(ctx context.Context, phone, code string) (bool, error)
}

// transportError はHTTP送信時のエラーを種別付きのErrorに変換する。
func transportError(providerName string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: providerName, Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Provider: providerName, Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Provider: providerName, Kind: KindRejected, Message: "request failed", Err: err}
}
