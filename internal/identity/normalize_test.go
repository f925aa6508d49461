package identity

import (
	"errors"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"小文字化と空白除去", "  Alice@Example.COM ", "alice@example.com", false},
		{"サブドメイン", "bob@mail.example.co.jp", "bob@mail.example.co.jp", false},
		{"国際化ドメインはPunycodeに変換", "user@bücher.de", "user@xn--bcher-kva.de", false},
		{"@なし", "alice.example.com", "", true},
		{"ドメインにドットなし", "alice@localhost", "", true},
		{"ローカル部が空", "@example.com", "", true},
		{"ドメインが空", "alice@", "", true},
		{"ローカル部に空白", "al ice@example.com", "", true},
		{"@が2つ", "a@b@example.com", "", true},
		{"空文字列", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEmail) {
					t.Fatalf("NormalizeEmail(%q) error = %v, want ErrInvalidEmail", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeEmail(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同じアドレスの表記ゆれは同じ正規形になることを検証
func TestNormalizeEmail_EquivalentInputsCollide(t *testing.T) {
	a, err := NormalizeEmail("A@Example.com")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeEmail(" a@example.COM")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected same normalized value, got %q and %q", a, b)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"10桁", "5551234567", "+15551234567", false},
		{"記号付き10桁", "(555) 123-4567", "+15551234567", false},
		{"国番号付き11桁", "1-555-123-4567", "+15551234567", false},
		{"E.164形式", "+1 555 123 4567", "+15551234567", false},
		{"1以外で始まる11桁", "25551234567", "", true},
		{"9桁", "555123456", "", true},
		{"12桁", "155512345678", "", true},
		{"数字なし", "call me", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhone) {
					t.Fatalf("NormalizePhone(%q) error = %v, want ErrInvalidPhone", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMaskEmail(t *testing.T) {
	if got := MaskEmail("alice@example.com"); got != "a***@example.com" {
		t.Errorf("MaskEmail = %q", got)
	}
	if got := MaskEmail("invalid"); got != "***" {
		t.Errorf("MaskEmail(invalid) = %q", got)
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+15551234567"); got != "+1******4567" {
		t.Errorf("MaskPhone = %q", got)
	}
	if got := MaskPhone("123"); got != "****" {
		t.Errorf("MaskPhone(short) = %q", got)
	}
}
