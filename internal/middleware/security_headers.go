package middleware

import (
	"net/http"
	"strings"
)

// hstsValue はHTTPS運用時に付与するStrict-Transport-Securityの値（180日）。
const hstsValue = "max-age=15552000; includeSubDomains"

// NewSecurityHeadersMiddleware は全レスポンスに共通のセキュリティヘッダーを付与する。
// /api/ 配下の応答はセッションに依存するためno-storeにする。個別ハンドラーは上書きしてよい。
// httpsがtrueの場合はHSTSも付与する。
func NewSecurityHeadersMiddleware(https bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			if https {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
