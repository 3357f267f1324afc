package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	codeRandomBytes  = 32
	codeLength       = 48
	tokenRandomBytes = 64
	tokenLength      = 96
)

func GenerateCode() (string, error) {
	return randomString(codeRandomBytes, codeLength)
}

func GenerateToken() (string, error) {
	return randomString(tokenRandomBytes, tokenLength)
}

// randomString draws chunks of at least chunkBytes random bytes and keeps
// the [A-Za-z0-9_-] characters of their base64 encoding until length
// characters are collected.
func randomString(chunkBytes, length int) (string, error) {
	var out strings.Builder
	out.Grow(length)

	buf := make([]byte, chunkBytes)
	for out.Len() < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, c := range base64.StdEncoding.EncodeToString(buf) {
			if out.Len() == length {
				break
			}
			if isTokenChar(c) {
				out.WriteRune(c)
			}
		}
	}

	return out.String(), nil
}

func isTokenChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
}
