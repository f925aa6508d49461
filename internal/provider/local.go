package provider

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/repository"
	"github.com/hitoshi/thefn/internal/session"
)

const (
	localProviderName = "local"

	// LocalLinkType はローカル開発用マジックリンクのコールバック種別。
	LocalLinkType = "localdev"

	defaultDevLinkTTL = 15 * time.Minute
)

// LocalProvider はAUTH_PROVIDER=localで使う開発用のメールプロバイダ。
// マジックリンクはトークンのハッシュをdev_magic_linksに1回限りの行として保存し、
// メールの代わりにoutboxへリンクを書き出す。
type LocalProvider struct {
	repo   repository.DevMagicLinkRepository
	ttl    time.Duration
	outbox io.Writer
	now    func() time.Time
}

// NewLocalProvider はLocalProviderを生成する。outboxがnilの場合はリンクを書き出さない。
func NewLocalProvider(repo repository.DevMagicLinkRepository, ttl time.Duration, outbox io.Writer) *LocalProvider {
	if ttl <= 0 {
		ttl = defaultDevLinkTTL
	}
	if outbox == nil {
		outbox = io.Discard
	}
	return &LocalProvider{repo: repo, ttl: ttl, outbox: outbox, now: time.Now}
}

// Name はプロバイダ名を返す。
func (p *LocalProvider) Name() string { return localProviderName }

// SendMagicLink は開発用マジックリンクを作成し、outboxに書き出す。
func (p *LocalProvider) SendMagicLink(ctx context.Context, email, redirectURL string) error {
	token, err := session.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate dev magic link token: %w", err)
	}

	now := p.now()
	link := &model.DevMagicLink{
		ID:        uuid.New().String(),
		Email:     email,
		TokenHash: session.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(p.ttl),
	}
	if err := p.repo.Create(ctx, link); err != nil {
		return fmt.Errorf("failed to create dev magic link: %w", err)
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("failed to parse redirect URL: %w", err)
	}
	q := u.Query()
	// コールバックの引数名はSupabaseに合わせるが、値はハッシュ前のトークン
	q.Set("token_hash", token)
	q.Set("type", LocalLinkType)
	u.RawQuery = q.Encode()

	if _, err := fmt.Fprintf(p.outbox, "[dev magic link] to=%s expires=%s url=%s\n", email, link.ExpiresAt.Format(time.RFC3339), u.String()); err != nil {
		return fmt.Errorf("failed to write dev magic link: %w", err)
	}
	return nil
}

// VerifyMagicLink はリンクのトークンをハッシュして照合し、使用済みにしてメールアドレスを返す。
// 期限切れ・使用済み・存在しないリンクはすべてKindDeniedとなる。
func (p *LocalProvider) VerifyMagicLink(ctx context.Context, tokenHash, linkType string) (VerifiedEmail, error) {
	if linkType != LocalLinkType || tokenHash == "" {
		return VerifiedEmail{}, &Error{Provider: localProviderName, Kind: KindDenied, Message: "unsupported link"}
	}
	email, err := p.repo.Consume(ctx, session.HashToken(tokenHash), p.now())
	if err != nil {
		return VerifiedEmail{}, fmt.Errorf("failed to consume dev magic link: %w", err)
	}
	if email == "" {
		return VerifiedEmail{}, &Error{Provider: localProviderName, Kind: KindDenied, Message: "invalid or expired link"}
	}
	return VerifiedEmail{Email: email}, nil
}

// EmailFromAccessToken はローカルモードでは使えない。
func (p *LocalProvider) EmailFromAccessToken(_ context.Context, _ string) (VerifiedEmail, error) {
	return VerifiedEmail{}, &Error{Provider: localProviderName, Kind: KindDenied, Message: "access tokens are not supported in local mode"}
}

// compile-time interface check
var _ EmailProvider = (*LocalProvider)(nil)
