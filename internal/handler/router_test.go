package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/thefn/internal/middleware"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/profile"
	"golang.org/x/time/rate"
)

// mockSessionAuthenticator はRouterテスト用のSessionAuthenticatorモック。
type mockSessionAuthenticator struct {
	users map[string]*model.SessionUser
}

func (m *mockSessionAuthenticator) Authenticate(ctx context.Context, token string) (*model.SessionUser, error) {
	return m.users[token], nil
}

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T, otpBurst int) http.Handler {
	t.Helper()

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            rate.Limit(1.0 / 60.0),
		Burst:           otpBurst,
		CleanupInterval: time.Minute,
	})

	return NewRouter(&RouterDeps{
		Sessions: &mockSessionAuthenticator{
			users: map[string]*model.SessionUser{
				"valid-token": {UserID: "user-test-1", ProfileDisplayName: strPtr("Ada")},
			},
		},
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		OTPRateLimiter:     limiter,
		AuthService:        &mockAuthService{},
		AuthConfig:         AuthHandlerConfig{SessionMaxAge: 604800},
		ProfileService: &mockProfileService{
			getFn: func(ctx context.Context, userID string) (*model.Profile, error) {
				return &model.Profile{UserID: userID, DisplayName: "Ada"}, nil
			},
			saveFn: func(ctx context.Context, userID string, in profile.SaveInput) (*model.Profile, error) {
				return &model.Profile{UserID: userID, DisplayName: in.DisplayName}, nil
			},
		},
		AvatarSamples: &mockSampleLocator{},
		HealthChecker: &mockHealthChecker{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
	})
}

func TestNewRouter_Routes(t *testing.T) {
	router := createTestRouter(t, 5)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		cookie     string
		wantStatus int
	}{
		{name: "ヘルスチェック", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "メトリクス", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "メールリンク送信", method: http.MethodPost, path: "/api/auth/send-email-code", body: `{"email":"a@example.com"}`, wantStatus: http.StatusOK},
		{name: "SMS送信", method: http.MethodPost, path: "/api/auth/send-code", body: `{"phone":"5551234567"}`, wantStatus: http.StatusOK},
		{name: "ログアウト", method: http.MethodPost, path: "/api/auth/logout", wantStatus: http.StatusOK},
		{name: "me未認証", method: http.MethodGet, path: "/api/auth/me", wantStatus: http.StatusUnauthorized},
		{name: "dev-identities", method: http.MethodGet, path: "/api/auth/dev-identities", wantStatus: http.StatusOK},
		{name: "next未認証", method: http.MethodGet, path: "/api/auth/next", wantStatus: http.StatusOK},
		{name: "プロフィール未認証", method: http.MethodGet, path: "/api/profile", wantStatus: http.StatusUnauthorized},
		{name: "プロフィール取得", method: http.MethodGet, path: "/api/profile", cookie: "valid-token", wantStatus: http.StatusOK},
		{name: "プロフィール保存", method: http.MethodPost, path: "/api/profile", body: `{"handle":"ada","displayName":"Ada"}`, cookie: "valid-token", wantStatus: http.StatusOK},
		{name: "無効なセッション", method: http.MethodGet, path: "/api/profile", cookie: "stale-token", wantStatus: http.StatusUnauthorized},
		{name: "サンプル画像未生成", method: http.MethodGet, path: "/api/avatar/sample", cookie: "valid-token", wantStatus: http.StatusNotFound},
		{name: "存在しないルート", method: http.MethodGet, path: "/api/unknown", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(tt.method, tt.path, tt.body)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_NextUsesOptionalSession(t *testing.T) {
	router := createTestRouter(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/next", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	body := decodeBody(t, w)
	if body["nextPath"] != "/dashboard" {
		t.Errorf("nextPath = %v, want /dashboard", body["nextPath"])
	}
}

func TestNewRouter_OTPEndpointsAreRateLimited(t *testing.T) {
	router := createTestRouter(t, 2)

	send := func(path, body string) int {
		req := jsonRequest(http.MethodPost, path, body)
		req.RemoteAddr = "198.51.100.9:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("/api/auth/send-code", `{"phone":"5551234567"}`); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i+1, code, http.StatusOK)
		}
	}
	if code := send("/api/auth/verify-code", `{"phone":"5551234567","code":"123456"}`); code != http.StatusTooManyRequests {
		t.Errorf("verify after burst status = %d, want %d", code, http.StatusTooManyRequests)
	}

	// メールリンク送信はIPリミッターの対象外
	if code := send("/api/auth/send-email-code", `{"email":"a@example.com"}`); code != http.StatusOK {
		t.Errorf("send-email-code status = %d, want %d", code, http.StatusOK)
	}
}

func TestNewRouter_AppliesSecurityHeadersAndCORS(t *testing.T) {
	router := createTestRouter(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
	}
}
