// Package security はユーザー入力の無害化を提供する。
//
// TextSanitizer はプロフィールの表示名や自己紹介に含まれるマークアップを除去し、
// 平文として保存できる形に整える。bluemondayのStrictPolicyで全タグを落とし、
// Unicode正規化（NFC）と空白の畳み込みを行う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// TextSanitizer は平文フィールドのサニタイズ機能を提供する。
// bluemondayのポリシーはスレッドセーフなので、1インスタンスを共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、空白を1つに畳み込んで最大maxRunes文字に切り詰める。
// script・styleの中身は残らない。結果が空なら空文字列を返す。
func (s *TextSanitizer) Sanitize(raw string, maxRunes int) string {
	if raw == "" {
		return ""
	}

	stripped := s.policy.Sanitize(norm.NFC.String(raw))
	// StrictPolicyは&や<をエンティティにするので平文に戻す
	text := strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")

	if maxRunes > 0 {
		runes := []rune(text)
		if len(runes) > maxRunes {
			text = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return text
}
