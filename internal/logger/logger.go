// Package logger はJSON構造化ログの初期化を提供する。
//
// セッショントークン・確認コード・APIキーがうっかり属性として渡されても出力されないよう、
// 既知の秘密情報キーは値を伏せ字にしてから書き出す。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Redacted は伏せ字にした値の表記。
const Redacted = "[REDACTED]"

// sensitiveKeys は値を出力しない属性キー（小文字で比較）。
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"session_token": {},
	"token_hash":    {},
	"access_token":  {},
	"code":          {},
	"otp":           {},
	"api_key":       {},
	"apikey":        {},
	"anon_key":      {},
	"auth_token":    {},
	"authorization": {},
	"password":      {},
	"cookie":        {},
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redact はslog.HandlerOptions.ReplaceAttrとして秘密情報キーの値を伏せる。
// グループ内の属性も対象にする。
func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}))
}

// SetupDefault はInfoレベルでグローバルロガーを設定する。
func SetupDefault(w io.Writer) {
	SetupDefaultWithLevel(w, slog.LevelInfo)
}

// SetupDefaultWithLevel は指定レベルでグローバルロガーを設定して返す。wがnilならos.Stdout。
func SetupDefaultWithLevel(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}
