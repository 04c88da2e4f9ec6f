package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prohmpiriya/crowdsense/internal/domain"
)

// TokenIssuer produces the entry token printed on a confirmed booking.
// Checkpoints match the token as an opaque string.
type TokenIssuer interface {
	Issue(bookingID string, issuedAt time.Time) (string, error)
}

// TokenIssuerConfig contains configuration for JWTTokenIssuer
type TokenIssuerConfig struct {
	Secret string
	Issuer string
	// TTL of zero issues tokens without expiry
	TTL time.Duration
}

// JWTTokenIssuer signs entry tokens with HS256
type JWTTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWTTokenIssuer creates a new JWTTokenIssuer
func NewJWTTokenIssuer(cfg *TokenIssuerConfig) (*JWTTokenIssuer, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, errors.New("entry token secret is required")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "crowdsense"
	}
	return &JWTTokenIssuer{secret: []byte(cfg.Secret), issuer: issuer, ttl: cfg.TTL}, nil
}

// Issue signs a token bound to bookingID and issuedAt
func (i *JWTTokenIssuer) Issue(bookingID string, issuedAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       uuid.New().String(),
		Subject:  bookingID,
		Issuer:   i.issuer,
		IssuedAt: jwt.NewNumericDate(issuedAt),
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(i.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign entry token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and returns the booking id the token was issued for
func (i *JWTTokenIssuer) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil || !parsed.Valid {
		return "", domain.ErrInvalidToken
	}
	return claims.Subject, nil
}
