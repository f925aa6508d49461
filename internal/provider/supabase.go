package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/thefn/internal/metrics"
)

const supabaseProviderName = "supabase"

// SupabaseConfig はSupabase Authの接続設定。
type SupabaseConfig struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

// SupabaseClient はSupabase AuthのREST APIでマジックリンクを扱う。
type SupabaseClient struct {
	config     SupabaseConfig
	httpClient *http.Client
	metrics    metrics.MetricsCollector
}

// NewSupabaseClient はSupabaseClientを生成する。
func NewSupabaseClient(config SupabaseConfig, httpClient *http.Client, mc metrics.MetricsCollector) *SupabaseClient {
	config.URL = strings.TrimRight(strings.TrimSpace(config.URL), "/")
	config.AnonKey = strings.TrimSpace(config.AnonKey)
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &SupabaseClient{config: config, httpClient: httpClient, metrics: mc}
}

// Name はプロバイダ名を返す。
func (c *SupabaseClient) Name() string { return supabaseProviderName }

// supabaseErrorBody はSupabase Authのエラーレスポンス。
// エンドポイントによってメッセージのキーが異なる。
type supabaseErrorBody struct {
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

type supabaseVerifyResponse struct {
	User *struct {
		Email string `json:"email"`
	} `json:"user"`
}

type supabaseUserResponse struct {
	Email string `json:"email"`
}

// SendMagicLink はマジックリンクのメールを送信する。未登録のメールアドレスも受け付ける。
func (c *SupabaseClient) SendMagicLink(ctx context.Context, email, redirectURL string) error {
	payload := map[string]any{
		"email":              email,
		"create_user":        true,
		"should_create_user": true,
		"email_redirect_to":  redirectURL,
	}
	_, err := c.do(ctx, http.MethodPost, "/auth/v1/otp", payload, "", false)
	return err
}

// VerifyMagicLink はトークンハッシュを検証し、メールアドレスを返す。
func (c *SupabaseClient) VerifyMagicLink(ctx context.Context, tokenHash, linkType string) (VerifiedEmail, error) {
	payload := map[string]any{
		"token_hash": tokenHash,
		"type":       linkType,
	}
	body, err := c.do(ctx, http.MethodPost, "/auth/v1/verify", payload, "", true)
	if err != nil {
		return VerifiedEmail{}, err
	}

	var resp supabaseVerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return VerifiedEmail{}, &Error{Provider: supabaseProviderName, Kind: KindRejected, Message: "invalid verify response", Err: err}
	}
	if resp.User == nil {
		return VerifiedEmail{}, c.missingEmail()
	}
	return c.verifiedEmail(resp.User.Email)
}

// EmailFromAccessToken はアクセストークンの持ち主のメールアドレスを返す。
func (c *SupabaseClient) EmailFromAccessToken(ctx context.Context, accessToken string) (VerifiedEmail, error) {
	body, err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, true)
	if err != nil {
		return VerifiedEmail{}, err
	}

	var resp supabaseUserResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return VerifiedEmail{}, &Error{Provider: supabaseProviderName, Kind: KindRejected, Message: "invalid user response", Err: err}
	}
	return c.verifiedEmail(resp.Email)
}

func (c *SupabaseClient) verifiedEmail(raw string) (VerifiedEmail, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return VerifiedEmail{}, c.missingEmail()
	}
	return VerifiedEmail{Email: email}, nil
}

func (c *SupabaseClient) missingEmail() error {
	err := &Error{Provider: supabaseProviderName, Kind: KindDenied, Message: "unable to resolve verified email"}
	c.metrics.RecordProviderError(supabaseProviderName, string(err.Kind))
	return err
}

// do はSupabase Authにリクエストを送り、2xxの場合にレスポンスボディを返す。
// verifyingがtrueの場合、4xxは検証の拒否として扱う。
func (c *SupabaseClient) do(ctx context.Context, method, path string, payload any, bearer string, verifying bool) ([]byte, error) {
	if c.config.URL == "" || c.config.AnonKey == "" {
		err := &Error{Provider: supabaseProviderName, Kind: KindMisconfigured, Message: "supabase auth environment is not configured"}
		c.metrics.RecordProviderError(supabaseProviderName, string(err.Kind))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode supabase request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase request: %w", err)
	}
	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordProviderLatency(supabaseProviderName, time.Since(start))
	if err != nil {
		pErr := transportError(supabaseProviderName, err)
		c.metrics.RecordProviderError(supabaseProviderName, string(pErr.Kind))
		return nil, pErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		pErr := transportError(supabaseProviderName, err)
		c.metrics.RecordProviderError(supabaseProviderName, string(pErr.Kind))
		return nil, pErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	pErr := &Error{
		Provider: supabaseProviderName,
		Kind:     classifySupabaseStatus(resp.StatusCode, verifying),
		Message:  supabaseErrorMessage(resp.StatusCode, body),
	}
	// 送信時のみ、ステータスに関係なくメッセージでレート制限を判定する
	if !verifying && pErr.Kind != KindRateLimited && strings.Contains(strings.ToLower(pErr.Message), "rate") {
		pErr.Kind = KindRateLimited
	}
	c.metrics.RecordProviderError(supabaseProviderName, string(pErr.Kind))
	return nil, pErr
}

func classifySupabaseStatus(status int, verifying bool) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case verifying && status >= 400 && status < 500:
		return KindDenied
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindMisconfigured
	default:
		return KindRejected
	}
}

// supabaseErrorMessage はmessage, error_description, msgの順にエラーメッセージを取り出す。
func supabaseErrorMessage(status int, body []byte) string {
	var e supabaseErrorBody
	if err := json.Unmarshal(body, &e); err == nil {
		for _, m := range []string{e.Message, e.ErrorDescription, e.Msg} {
			if m != "" {
				return m
			}
		}
	}
	return fmt.Sprintf("supabase auth request failed (%d)", status)
}

// compile-time interface check
var _ EmailProvider = (*SupabaseClient)(nil)
