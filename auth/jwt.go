// Package auth verifies client handshakes with HMAC-signed JWTs carried in
// the password field of a connect.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/miladsoleymani/pubmux/server"
)

var (
	// ErrEmptyToken is returned when a connect carries no token.
	ErrEmptyToken = errors.New("pubmux/auth: token cannot be empty")
	// ErrClientMismatch is returned when the token was issued to another client.
	ErrClientMismatch = errors.New("pubmux/auth: token issued to a different client")
)

// Claims are the JWT claims a client presents at connect.
type Claims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// JWTAuth issues and validates client tokens.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a JWTAuth signing with secret.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// GenerateToken signs a token for clientID that expires after ttl.
func (j *JWTAuth) GenerateToken(clientID string, ttl time.Duration) (string, time.Time, error) {
	if clientID == "" {
		return "", time.Time{}, errors.New("pubmux/auth: clientID cannot be empty")
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("pubmux/auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses a token, optionally prefixed with "Bearer ", and
// returns its claims.
func (j *JWTAuth) ValidateToken(token string) (*Claims, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return nil, ErrEmptyToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pubmux/auth: invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("pubmux/auth: invalid claims")
	}
	return claims, nil
}

// Connect returns a server.ConnectFunc that validates the token in the
// connect password and checks it was issued to the connecting client. build
// turns the accepted connect into session state.
func Connect[S any](j *JWTAuth, build func(ctx context.Context, c *server.Connect, claims *Claims) (S, error)) server.ConnectFunc[S] {
	return func(ctx context.Context, c *server.Connect) (S, error) {
		var zero S
		claims, err := j.ValidateToken(string(c.Password))
		if err != nil {
			return zero, err
		}
		if claims.ClientID != c.ClientID {
			return zero, ErrClientMismatch
		}
		return build(ctx, c, claims)
	}
}
