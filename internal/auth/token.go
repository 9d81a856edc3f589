package auth

import (
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = fmt.Errorf("%w: malformed token", core.ErrUnauthorized)
	ErrBadSignature   = fmt.Errorf("%w: bad token signature", core.ErrUnauthorized)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", core.ErrUnauthorized)
)

// TokenSigner issues and verifies HS256 JWTs carrying the user id as subject.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenSigner(secret string, ttl time.Duration) (*TokenSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty token secret")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *TokenSigner) Issue(userID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its subject.
func (s *TokenSigner) Verify(token string) (string, error) {
	var c jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", ErrBadSignature
	default:
		return "", ErrMalformedToken
	}
	if c.Subject == "" {
		return "", ErrMalformedToken
	}
	return c.Subject, nil
}
