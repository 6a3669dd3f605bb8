package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is how long an issued access token stays valid.
const TokenTTL = 8 * time.Hour

// ErrInvalidToken is returned for expired, malformed or tampered tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Email  string
	Role   string
}

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HMAC-SHA256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewTokenIssuer creates an issuer signing with the given secret.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}

	return &TokenIssuer{secret: []byte(secret), ttl: TokenTTL, now: time.Now}, nil
}

// Issue signs a token carrying the identity's claims.
func (t *TokenIssuer) Issue(identity Identity) (string, error) {
	now := t.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  identity.Name,
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a token, returning the embedded identity.
func (t *TokenIssuer) Verify(tokenString string) (Identity, error) {
	var parsed claims
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}

		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now() }))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID: userID,
		Name:   parsed.Name,
		Email:  parsed.Email,
		Role:   parsed.Role,
	}, nil
}
