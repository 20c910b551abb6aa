package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HMACConfig controls issuance and validation of HS256 tokens.
type HMACConfig struct {
	Secret []byte
	// Issuer is written to and required in the iss claim when non-empty.
	Issuer string
	// Audience is written to and required in the aud claim when non-empty.
	Audience string
	Leeway   time.Duration
}

// HMACAuthenticator verifies and issues HS256 JWTs signed with a shared secret.
type HMACAuthenticator struct {
	cfg HMACConfig
	now func() time.Time
}

// NewHMAC constructs an HMACAuthenticator.
func NewHMAC(cfg HMACConfig) (*HMACAuthenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("secret is required")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 30 * time.Second
	}
	return &HMACAuthenticator{cfg: cfg, now: time.Now}, nil
}

// Issue signs a token for subject that expires after ttl.
func (a *HMACAuthenticator) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if a.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.Secret)
}

// CheckAuthentication implements Authenticator.
func (a *HMACAuthenticator) CheckAuthentication(_ context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.Leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return a.cfg.Secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &userInfo{sub: sub, claims: claims}, nil
}

var _ Authenticator = (*HMACAuthenticator)(nil)
