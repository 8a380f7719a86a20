package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"stablelink/internal/domain"
)

// Verifier проверяет bearer-токены шлюза платформы и извлекает из них
// личность вызывающего. Ядро получает личность только отсюда,
// явным параметром — никакого глобального сеансового состояния.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(cfg *Config) *Verifier {
	return &Verifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
}

type claims struct {
	ProfileID string   `json:"profile_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	TenantIDs []string `json:"tenant_ids,omitempty"`
	jwt.RegisteredClaims
}

// VerifyRequest извлекает личность из заголовка Authorization.
func (v *Verifier) VerifyRequest(r *http.Request) (domain.Caller, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return domain.Caller{}, fmt.Errorf("no authorization header")
	}
	raw := strings.TrimPrefix(header, "Bearer ")
	return v.Verify(raw)
}

// Verify разбирает и проверяет подписанный токен шлюза.
func (v *Verifier) Verify(raw string) (domain.Caller, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Caller{}, fmt.Errorf("invalid token: %w", err)
	}
	if c.Subject == "" {
		return domain.Caller{}, fmt.Errorf("invalid token: missing subject")
	}

	return domain.Caller{
		UserID:    c.Subject,
		ProfileID: c.ProfileID,
		Email:     c.Email,
		TenantIDs: c.TenantIDs,
	}, nil
}
