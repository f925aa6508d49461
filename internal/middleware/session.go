// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/thefn/internal/model"
)

// SessionCookieName はセッショントークンを運ぶCookie名。
const SessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionUserContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var sessionUserContextKey = contextKey("session_user")

// userBoxContextKey はアクセスログ用にユーザーIDを外側のミドルウェアへ渡す箱のキー。
var userBoxContextKey = contextKey("user_box")

type userBox struct {
	id string
}

func withUserBox(ctx context.Context, b *userBox) context.Context {
	return context.WithValue(ctx, userBoxContextKey, b)
}

// SessionAuthenticator はトークンから認証済みユーザーを解決する。
// 無効なトークンの場合はnil, nilを返す。
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.SessionUser, error)
}

// SessionToken はリクエストのCookieからセッショントークンを取り出す。
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewSessionMiddleware はCookieのセッションを検証するミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入し、未認証リクエストには401を返す。
func NewSessionMiddleware(auth SessionAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				slog.Error("failed to authenticate session", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSessionUser(r.Context(), user)))
		})
	}
}

// NewOptionalSessionMiddleware はセッションがあればコンテキストに注入し、なくても次に進むミドルウェアを返す。
// 検証に失敗した場合も未認証として扱う。
func NewOptionalSessionMiddleware(auth SessionAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				slog.Warn("failed to authenticate optional session", slog.String("error", err.Error()))
			}
			if user != nil {
				r = r.WithContext(ContextWithSessionUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionUserFromContext はリクエストコンテキストから認証済みユーザーを取得する。未認証ならnil。
func SessionUserFromContext(ctx context.Context) *model.SessionUser {
	user, _ := ctx.Value(sessionUserContextKey).(*model.SessionUser)
	return user
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	user := SessionUserFromContext(ctx)
	if user == nil || user.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return user.UserID, nil
}

// ContextWithSessionUser はコンテキストに認証済みユーザーを注入する。
func ContextWithSessionUser(ctx context.Context, user *model.SessionUser) context.Context {
	if b, ok := ctx.Value(userBoxContextKey).(*userBox); ok && user != nil {
		b.id = user.UserID
	}
	return context.WithValue(ctx, sessionUserContextKey, user)
}
