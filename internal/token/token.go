package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Токены — непрозрачные bearer-ручки: 32 байта crypto/rand (256 бит),
// URL-safe base64 без паддинга. Ничего не кодируют и не парсятся.

const rawLen = 32

// Generate возвращает новый случайный токен.
func Generate() (string, error) {
	b := make([]byte, rawLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ConstantTimeEquals сравнивает токены за постоянное время,
// чтобы не давать таймингового канала при проверке.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
