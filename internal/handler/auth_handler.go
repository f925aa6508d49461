// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/thefn/internal/auth"
	"github.com/hitoshi/thefn/internal/middleware"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/profilegate"
)

// devIdentityLimit はローカル開発モードで提示するログイン候補の件数。
const devIdentityLimit = 12

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RequestEmailLink(ctx context.Context, in auth.RequestEmailLinkInput) (*auth.EmailLinkResult, error)
	CompleteMagicLink(ctx context.Context, in auth.CompleteMagicLinkInput) (*auth.Completion, error)
	SendPhoneCode(ctx context.Context, rawPhone string) error
	VerifyPhoneCode(ctx context.Context, in auth.VerifyPhoneCodeInput) (*auth.Completion, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*model.SessionUser, error)
	DevIdentities(ctx context.Context, limit int) ([]model.RecentEmailIdentity, error)
	LocalMode() bool
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type sendEmailCodeRequest struct {
	Email string `json:"email"`
}

type sendEmailCodeResponse struct {
	Success  bool   `json:"success"`
	DevMode  bool   `json:"devMode,omitempty"`
	NextPath string `json:"nextPath,omitempty"`
}

type completeMagicLinkRequest struct {
	TokenHash   string `json:"tokenHash"`
	Type        string `json:"type"`
	AccessToken string `json:"accessToken"`
}

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

type verifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type completionResponse struct {
	Success  bool   `json:"success"`
	NextPath string `json:"nextPath"`
}

type meResponse struct {
	UserID      string  `json:"userId"`
	DisplayName *string `json:"displayName"`
	NextPath    string  `json:"nextPath"`
}

type devIdentity struct {
	Email string `json:"email"`
	Label string `json:"label"`
}

type devIdentitiesResponse struct {
	Enabled bool          `json:"enabled"`
	Emails  []devIdentity `json:"emails"`
}

// SendEmailCode はマジックリンクの送信を要求する。
// ローカル開発モードでは即座にセッションを発行する。
// POST /api/auth/send-email-code
func (h *AuthHandler) SendEmailCode(w http.ResponseWriter, r *http.Request) {
	var req sendEmailCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.RequestEmailLink(r.Context(), auth.RequestEmailLinkInput{
		Email:     req.Email,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := sendEmailCodeResponse{Success: true, DevMode: result.DevMode}
	if result.Session != nil {
		h.setSessionCookie(w, result.Session.Token)
		resp.NextPath = result.Session.NextPath
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompleteMagicLink はマジックリンクのコールバックを検証しセッションを発行する。
// POST /api/auth/complete-magic-link
func (h *AuthHandler) CompleteMagicLink(w http.ResponseWriter, r *http.Request) {
	var req completeMagicLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	completion, err := h.service.CompleteMagicLink(r.Context(), auth.CompleteMagicLinkInput{
		TokenHash:   req.TokenHash,
		Type:        req.Type,
		AccessToken: req.AccessToken,
		IP:          middleware.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, completion.Token)
	writeJSON(w, http.StatusOK, completionResponse{Success: true, NextPath: completion.NextPath})
}

// SendCode はSMSの確認コードを送信する。
// POST /api/auth/send-code
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SendPhoneCode(r.Context(), req.Phone); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// VerifyCode はSMSの確認コードを検証しセッションを発行する。
// POST /api/auth/verify-code
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	completion, err := h.service.VerifyPhoneCode(r.Context(), auth.VerifyPhoneCodeInput{
		Phone:     req.Phone,
		Code:      req.Code,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, completion.Token)
	writeJSON(w, http.StatusOK, completionResponse{Success: true, NextPath: completion.NextPath})
}

// Logout はセッションを失効させCookieを削除する。
// 失効に失敗した場合はCookieを残したまま500を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r)
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:      user.UserID,
		DisplayName: user.ProfileDisplayName,
		NextPath:    profilegate.NextPathFor(user),
	})
}

// Next は呼び出し元の遷移先を返す。未認証ならログイン画面。
// 任意セッションミドルウェアの内側で使う。
// GET /api/auth/next
func (h *AuthHandler) Next(w http.ResponseWriter, r *http.Request) {
	user := middleware.SessionUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"nextPath": profilegate.NextPathFor(user)})
}

// DevIdentities はローカル開発モードのログイン候補を返す。
// GET /api/auth/dev-identities
func (h *AuthHandler) DevIdentities(w http.ResponseWriter, r *http.Request) {
	if !h.service.LocalMode() {
		writeJSON(w, http.StatusOK, devIdentitiesResponse{Enabled: false, Emails: []devIdentity{}})
		return
	}

	identities, err := h.service.DevIdentities(r.Context(), devIdentityLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := devIdentitiesResponse{Enabled: true, Emails: make([]devIdentity, 0, len(identities))}
	for _, id := range identities {
		resp.Emails = append(resp.Emails, devIdentity{Email: id.Email, Label: devIdentityLabel(id)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func devIdentityLabel(id model.RecentEmailIdentity) string {
	if id.DisplayName != nil {
		if name := strings.TrimSpace(*id.DisplayName); name != "" {
			return name + " (" + id.Email + ")"
		}
	}
	return id.Email
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
