// Package auth はメールのマジックリンクとSMSの確認コードによる認証フローを提供する。
//
// レート制限、プロバイダ呼び出し、ユーザー解決、セッション発行、遷移先の決定を順に行う。
// 利用者に返すべき失敗は*model.APIErrorとして返し、それ以外は内部エラーとしてラップして返す。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hitoshi/thefn/internal/identity"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/profilegate"
	"github.com/hitoshi/thefn/internal/provider"
	"github.com/hitoshi/thefn/internal/session"
)

// CallbackPath はマジックリンクのリダイレクト先パス。
const CallbackPath = "/auth/callback"

// providerRetryAfterSeconds はプロバイダ側のレート制限時に利用者へ提示する待ち時間。
const providerRetryAfterSeconds = 60

// セッション発行時の認証方式。
const (
	MethodEmail    = "email"
	MethodPhone    = "phone"
	MethodLocalDev = "localdev"
)

// defaultLinkType はコールバックでtypeが省略された場合の種別。
const defaultLinkType = "magiclink"

var acceptedLinkTypes = map[string]bool{
	"magiclink": true,
	"signup":    true,
	"email":     true,
}

var codePattern = regexp.MustCompile(`^[0-9]{4,10}$`)

// IdentityResolver は検証済みidentityからユーザーIDを解決する。
type IdentityResolver interface {
	ResolveOrCreateUser(ctx context.Context, identityType model.IdentityType, normalizedValue string) (string, error)
	ListRecentEmails(ctx context.Context, limit int) ([]model.RecentEmailIdentity, error)
}

// SessionManager はセッションの発行・検証・失効を行う。
type SessionManager interface {
	Issue(ctx context.Context, in session.IssueInput) (string, error)
	Authenticate(ctx context.Context, token string) (*model.SessionUser, error)
	Revoke(ctx context.Context, token string) error
}

// RateLimiter はマジックリンク発行の可否を判定する。
type RateLimiter interface {
	Consume(ctx context.Context, email string, ipAddress *string) (model.RateLimitDecision, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL   string // マジックリンクのリダイレクト先の基底URL
	LocalMode bool   // trueの場合、メール送信を待たずにその場でセッションを発行する
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	identities IdentityResolver
	sessions   SessionManager
	limiter    RateLimiter
	email      provider.EmailProvider
	sms        provider.SMSProvider
	config     ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	identities IdentityResolver,
	sessions SessionManager,
	limiter RateLimiter,
	email provider.EmailProvider,
	sms provider.SMSProvider,
	config ServiceConfig,
) *Service {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Service{
		identities: identities,
		sessions:   sessions,
		limiter:    limiter,
		email:      email,
		sms:        sms,
		config:     config,
	}
}

// LocalMode はローカル開発モードかどうかを返す。
func (s *Service) LocalMode() bool {
	return s.config.LocalMode
}

// Completion は認証完了時の結果。Tokenは生のセッショントークンで、Cookieにのみ載せる。
type Completion struct {
	Token    string
	UserID   string
	NextPath string
}

// RequestEmailLinkInput はマジックリンク発行要求の入力。
type RequestEmailLinkInput struct {
	Email     string
	IP        string
	UserAgent string
}

// EmailLinkResult はマジックリンク発行要求の結果。
// ローカル開発モードではSessionに発行済みセッションが入る。
type EmailLinkResult struct {
	DevMode bool
	Session *Completion
}

// RequestEmailLink はレート制限を通過した場合にマジックリンクを送信する。
func (s *Service) RequestEmailLink(ctx context.Context, in RequestEmailLinkInput) (*EmailLinkResult, error) {
	email, err := identity.NormalizeEmail(in.Email)
	if err != nil {
		return nil, model.NewInvalidEmailError()
	}

	decision, err := s.limiter.Consume(ctx, email, optionalString(in.IP))
	if err != nil {
		return nil, fmt.Errorf("failed to check magic link rate limit: %w", err)
	}
	if !decision.Allowed {
		slog.Warn("magic link request rate limited",
			slog.String("email", identity.MaskEmail(email)),
			slog.String("reason", string(decision.Reason)),
			slog.Int("retry_after_seconds", decision.RetryAfterSeconds),
		)
		return nil, model.NewRateLimitedError(decision)
	}

	if err := s.email.SendMagicLink(ctx, email, s.config.BaseURL+CallbackPath); err != nil {
		return nil, s.providerFailure("send magic link", err, model.NewProviderUnavailableError())
	}
	slog.Info("magic link sent",
		slog.String("email", identity.MaskEmail(email)),
		slog.String("provider", s.email.Name()),
	)

	if !s.config.LocalMode {
		return &EmailLinkResult{}, nil
	}

	completion, err := s.complete(ctx, model.IdentityTypeEmail, email, MethodLocalDev, in.IP, in.UserAgent)
	if err != nil {
		return nil, err
	}
	return &EmailLinkResult{DevMode: true, Session: completion}, nil
}

// CompleteMagicLinkInput はマジックリンクのコールバック入力。
// TokenHashとAccessTokenのどちらか一方が必要。
type CompleteMagicLinkInput struct {
	TokenHash   string
	Type        string
	AccessToken string
	IP          string
	UserAgent   string
}

// CompleteMagicLink はコールバックの資格情報を検証し、セッションを発行する。
// 両方のトークンがある場合はAccessTokenを優先する。ただしlocaldevリンクは常にTokenHashで照合する。
// 検証の拒否は理由を問わず「無効または期限切れ」として返す。
func (s *Service) CompleteMagicLink(ctx context.Context, in CompleteMagicLinkInput) (*Completion, error) {
	tokenHash := strings.TrimSpace(in.TokenHash)
	accessToken := strings.TrimSpace(in.AccessToken)
	if tokenHash == "" && accessToken == "" {
		return nil, model.NewMissingCallbackTokenError()
	}

	var (
		verified provider.VerifiedEmail
		err      error
	)
	linkType := strings.TrimSpace(in.Type)
	if linkType == "" {
		linkType = defaultLinkType
	}
	method := MethodEmail
	switch {
	case accessToken != "" && linkType != provider.LocalLinkType:
		verified, err = s.email.EmailFromAccessToken(ctx, accessToken)
	case tokenHash == "":
		return nil, model.NewMissingCallbackTokenError()
	default:
		if !s.linkTypeAccepted(linkType) {
			return nil, model.NewUnsupportedCallbackError()
		}
		if linkType == provider.LocalLinkType {
			method = MethodLocalDev
		}
		verified, err = s.email.VerifyMagicLink(ctx, tokenHash, linkType)
	}
	if err != nil {
		return nil, s.providerFailure("verify magic link", err, model.NewInvalidOrExpiredError())
	}

	email, err := identity.NormalizeEmail(verified.Email)
	if err != nil {
		slog.Warn("provider returned an invalid email", slog.String("provider", s.email.Name()))
		return nil, model.NewInvalidOrExpiredError()
	}
	return s.complete(ctx, model.IdentityTypeEmail, email, method, in.IP, in.UserAgent)
}

func (s *Service) linkTypeAccepted(linkType string) bool {
	if acceptedLinkTypes[linkType] {
		return true
	}
	return s.config.LocalMode && linkType == provider.LocalLinkType
}

// SendPhoneCode は電話番号にSMSで確認コードを送信する。
func (s *Service) SendPhoneCode(ctx context.Context, rawPhone string) error {
	phone, err := identity.NormalizePhone(rawPhone)
	if err != nil {
		return model.NewInvalidPhoneError()
	}
	if err := s.sms.SendVerificationCode(ctx, phone); err != nil {
		return s.providerFailure("send verification code", err, model.NewProviderUnavailableError())
	}
	slog.Info("verification code sent",
		slog.String("phone", identity.MaskPhone(phone)),
		slog.String("provider", s.sms.Name()),
	)
	return nil
}

// VerifyPhoneCodeInput は確認コード照合の入力。
type VerifyPhoneCodeInput struct {
	Phone     string
	Code      string
	IP        string
	UserAgent string
}

// VerifyPhoneCode は確認コードを照合し、承認されればセッションを発行する。
func (s *Service) VerifyPhoneCode(ctx context.Context, in VerifyPhoneCodeInput) (*Completion, error) {
	phone, err := identity.NormalizePhone(in.Phone)
	if err != nil {
		return nil, model.NewInvalidPhoneError()
	}
	code := strings.TrimSpace(in.Code)
	if !codePattern.MatchString(code) {
		return nil, model.NewValidationError("Enter the code from the text message.")
	}

	approved, err := s.sms.CheckVerificationCode(ctx, phone, code)
	if err != nil {
		return nil, s.providerFailure("check verification code", err, model.NewInvalidCodeError())
	}
	if !approved {
		slog.Info("verification code not approved", slog.String("phone", identity.MaskPhone(phone)))
		return nil, model.NewInvalidCodeError()
	}
	return s.complete(ctx, model.IdentityTypePhone, phone, MethodPhone, in.IP, in.UserAgent)
}

// Logout はセッションを失効させる。存在しないトークンでも成功する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CurrentUser はトークンに対応する認証済みユーザーを返す。未認証ならnil。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.SessionUser, error) {
	user, err := s.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return user, nil
}

// DevIdentities はローカル開発モードのログイン候補を返す。ローカル開発モード以外では空。
func (s *Service) DevIdentities(ctx context.Context, limit int) ([]model.RecentEmailIdentity, error) {
	if !s.config.LocalMode {
		return nil, nil
	}
	emails, err := s.identities.ListRecentEmails(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dev identities: %w", err)
	}
	return emails, nil
}

// complete はメール・電話番号の両フローに共通の完了処理。
func (s *Service) complete(ctx context.Context, identityType model.IdentityType, value, method, ip, userAgent string) (*Completion, error) {
	userID, err := s.identities.ResolveOrCreateUser(ctx, identityType, value)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	token, err := s.sessions.Issue(ctx, session.IssueInput{
		UserID:    userID,
		Method:    method,
		IPAddress: optionalString(ip),
		UserAgent: optionalString(userAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	user, err := s.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load issued session: %w", err)
	}

	return &Completion{
		Token:    token,
		UserID:   userID,
		NextPath: profilegate.NextPathFor(user),
	}, nil
}

// providerFailure はプロバイダのエラーを利用者向けのエラーに変換する。
// deniedはKindDeniedのときに返すエラー。
func (s *Service) providerFailure(op string, err error, denied *model.APIError) error {
	var pErr *provider.Error
	if !errors.As(err, &pErr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	slog.Warn("provider call failed",
		slog.String("operation", op),
		slog.String("provider", pErr.Provider),
		slog.String("kind", string(pErr.Kind)),
		slog.String("error", pErr.Message),
	)

	switch pErr.Kind {
	case provider.KindMisconfigured:
		return model.NewProviderMisconfiguredError()
	case provider.KindRateLimited:
		return model.NewProviderRateLimitedError(providerRetryAfterSeconds)
	case provider.KindDenied:
		return denied
	default:
		return model.NewProviderUnavailableError()
	}
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
