// File: internal/infra/security/webhook_token.go
package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mediaflow/internal/domain"
)

const tokenIssuer = "mediaflow"

// WebhookSigner binds provider callbacks to the job they were issued for. The
// token travels in the callback URL query, so the provider needs no secret.
type WebhookSigner struct {
	key     []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewWebhookSigner needs a secret of at least 16 bytes. baseURL is the public
// callback endpoint, e.g. https://api.example.com/webhooks/provider.
func NewWebhookSigner(secret, baseURL string, ttl time.Duration) (*WebhookSigner, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("webhook secret must be at least 16 bytes; got %d", len(secret))
	}
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("webhook base url %q: invalid", baseURL)
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &WebhookSigner{key: []byte(secret), baseURL: baseURL, ttl: ttl, now: time.Now}, nil
}

// Sign returns an HS256 token whose subject is jobID.
func (s *WebhookSigner) Sign(jobID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   jobID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// WebhookURL is the callback URL handed to the provider for jobID.
func (s *WebhookSigner) WebhookURL(jobID string) (string, error) {
	token, err := s.Sign(jobID)
	if err != nil {
		return "", err
	}
	sep := "?"
	if strings.Contains(s.baseURL, "?") {
		sep = "&"
	}
	return s.baseURL + sep + "token=" + url.QueryEscape(token), nil
}

// Verify returns the job id of a valid token, or domain.ErrUnauthorized.
func (s *WebhookSigner) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing webhook token", domain.ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: webhook token expired", domain.ErrUnauthorized)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: webhook token has no subject", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}
