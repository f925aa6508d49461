package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name       string
		input      string
		want       string
		wantAbsent []string
	}{
		{
			name:  "タグのない文字列はそのまま",
			input: "Alice Example",
			want:  "Alice Example",
		},
		{
			name:  "装飾タグは除去され中身が残る",
			input: "<strong>Alice</strong> <em>Example</em>",
			want:  "Alice Example",
		},
		{
			name:       "scriptタグは中身ごと除去される",
			input:      `Bob<script>alert('xss')</script>`,
			want:       "Bob",
			wantAbsent: []string{"script", "alert"},
		},
		{
			name:       "styleタグは中身ごと除去される",
			input:      `<style>body{display:none}</style>Carol`,
			want:       "Carol",
			wantAbsent: []string{"display"},
		},
		{
			name:       "on*イベント属性は残らない",
			input:      `<p onclick="alert('xss')">Dave</p>`,
			want:       "Dave",
			wantAbsent: []string{"onclick"},
		},
		{
			name:  "エンティティは平文に戻る",
			input: "Tom & Jerry",
			want:  "Tom & Jerry",
		},
		{
			name:  "マルチバイト文字",
			input: "<b>山田</b>　太郎",
			want:  "山田 太郎",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input, 0)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

func TestSanitize_CollapsesWhitespace(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize("  hello \n\t  world  ", 0)
	if got != "hello world" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
	if got := sanitizer.Sanitize(" \n ", 0); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := sanitizer.Sanitize("", 10); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestSanitize_Truncates(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize(strings.Repeat("あ", 50), 40)
	if n := utf8.RuneCountInString(got); n != 40 {
		t.Errorf("expected 40 runes, got %d", n)
	}

	// 切り詰め位置の空白は残さない
	got = sanitizer.Sanitize("abcd efgh", 5)
	if got != "abcd" {
		t.Errorf("expected %q, got %q", "abcd", got)
	}
}

func TestSanitize_NormalizesNFC(t *testing.T) {
	sanitizer := NewTextSanitizer()

	// "e" + 結合アキュート（NFD）はNFCで1文字になる
	got := sanitizer.Sanitize("Cafe\u0301", 0)
	if got != "Caf\u00e9" {
		t.Errorf("expected NFC form, got %q", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{
		"<p>Hello</p> <b>world</b>",
		"Tom & Jerry",
		"  spaced   out  ",
	}
	for _, input := range inputs {
		first := sanitizer.Sanitize(input, 40)
		second := sanitizer.Sanitize(first, 40)
		if first != second {
			t.Errorf("not idempotent for %q: %q -> %q", input, first, second)
		}
	}
}
