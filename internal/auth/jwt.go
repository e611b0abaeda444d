package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UIClaims represents the claims in a UI session token.
type UIClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates UI session tokens. The secret is injected
// from configuration; tokens are short-lived since the UI refreshes them with
// every session credential fetch.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer with the given signing secret and token
// lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue generates a signed token for a UI client.
func (i *TokenIssuer) Issue(clientID string) (string, error) {
	claims := &UIClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses a token and returns its claims.
func (i *TokenIssuer) Validate(tokenString string) (*UIClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UIClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UIClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
