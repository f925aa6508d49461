package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/thefn/internal/metrics"
)

const (
	twilioProviderName   = "twilio"
	defaultTwilioBaseURL = "https://verify.twilio.com/v2"
)

// TwilioConfig はTwilio Verifyの接続設定。
type TwilioConfig struct {
	AccountSID       string
	AuthToken        string
	VerifyServiceSID string
	Timeout          time.Duration

	// テスト用にオーバーライド可能なURL
	BaseURL string
}

// Configured は必要な認証情報がすべて設定されているかを返す。
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.VerifyServiceSID != ""
}

// TwilioVerifyClient はTwilio Verify v2 APIでSMS確認コードを扱う。
type TwilioVerifyClient struct {
	config     TwilioConfig
	httpClient *http.Client
	metrics    metrics.MetricsCollector
}

// NewTwilioVerifyClient はTwilioVerifyClientを生成する。
func NewTwilioVerifyClient(config TwilioConfig, httpClient *http.Client, mc metrics.MetricsCollector) *TwilioVerifyClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultTwilioBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &TwilioVerifyClient{config: config, httpClient: httpClient, metrics: mc}
}

// Name はプロバイダ名を返す。
func (c *TwilioVerifyClient) Name() string { return twilioProviderName }

type twilioVerificationResponse struct {
	Status string `json:"status"`
}

type twilioErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendVerificationCode はSMSで確認コードを送信する。
func (c *TwilioVerifyClient) SendVerificationCode(ctx context.Context, phone string) error {
	form := url.Values{
		"To":      {phone},
		"Channel": {"sms"},
	}
	_, err := c.post(ctx, "/Verifications", form)
	return err
}

// CheckVerificationCode は確認コードを照合する。
// 照合対象の認証が存在しない（期限切れ・使用済み）場合は承認されなかったものとして扱う。
func (c *TwilioVerifyClient) CheckVerificationCode(ctx context.Context, phone, code string) (bool, error) {
	form := url.Values{
		"To":   {phone},
		"Code": {code},
	}
	body, err := c.post(ctx, "/VerificationCheck", form)
	if err != nil {
		if kind, ok := KindOf(err); ok && kind == KindDenied {
			return false, nil
		}
		return false, err
	}

	var resp twilioVerificationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, &Error{Provider: twilioProviderName, Kind: KindRejected, Message: "invalid verification check response", Err: err}
	}
	return resp.Status == "approved", nil
}

func (c *TwilioVerifyClient) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	if !c.config.Configured() {
		err := &Error{Provider: twilioProviderName, Kind: KindMisconfigured, Message: "twilio verify is not configured"}
		c.metrics.RecordProviderError(twilioProviderName, string(err.Kind))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/Services/%s%s", c.config.BaseURL, url.PathEscape(c.config.VerifyServiceSID), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordProviderLatency(twilioProviderName, time.Since(start))
	if err != nil {
		pErr := transportError(twilioProviderName, err)
		c.metrics.RecordProviderError(twilioProviderName, string(pErr.Kind))
		return nil, pErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		pErr := transportError(twilioProviderName, err)
		c.metrics.RecordProviderError(twilioProviderName, string(pErr.Kind))
		return nil, pErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	pErr := &Error{
		Provider: twilioProviderName,
		Kind:     classifyTwilioStatus(resp.StatusCode),
		Message:  twilioErrorMessage(resp.StatusCode, body),
	}
	c.metrics.RecordProviderError(twilioProviderName, string(pErr.Kind))
	return nil, pErr
}

func classifyTwilioStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindMisconfigured
	case http.StatusNotFound:
		return KindDenied
	default:
		return KindRejected
	}
}

func twilioErrorMessage(status int, body []byte) string {
	var e twilioErrorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("twilio verify request failed (%d)", status)
}

// compile-time interface check
var _ SMSProvider = (*TwilioVerifyClient)(nil)
