package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenBytes はセッショントークンのランダム部のバイト数（256ビット）。
const tokenBytes = 32

// GenerateToken は暗号的に安全なランダムトークンをURLセーフなbase64で返す。
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken はトークンのSHA-256ダイジェストを16進文字列で返す。
// DBにはこの値のみを保存する。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
