package identity

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrInvalidEmail はメールアドレスの形式が不正であることを表す。
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPhone は電話番号の形式が不正であることを表す。
	ErrInvalidPhone = errors.New("invalid phone number")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail はメールアドレスを照合用の正規形に変換する。
// 前後の空白を除去して小文字化し、国際化ドメインはASCII（Punycode）に変換する。
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ErrInvalidEmail
	}

	local, domain := email[:at], email[at+1:]
	asciiDomain, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", ErrInvalidEmail
	}

	normalized := local + "@" + asciiDomain
	if !emailPattern.MatchString(normalized) {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// NormalizePhone は米国の電話番号をE.164形式に変換する。
// 数字以外を除去し、10桁なら+1を付与、1で始まる11桁なら+を付与する。
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	default:
		return "", ErrInvalidPhone
	}
}

// MaskEmail はログ出力用にローカル部を伏せたメールアドレスを返す。
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskPhone はログ出力用に末尾4桁以外を伏せた電話番号を返す。
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	prefix := ""
	if strings.HasPrefix(phone, "+1") {
		prefix = "+1"
	}
	hidden := len(phone) - len(prefix) - 4
	if hidden < 0 {
		hidden = 0
	}
	return prefix + strings.Repeat("*", hidden) + phone[len(phone)-4:]
}
