package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds keep a login state value from being replayed as an access token.
const (
	KindAccess = "access"
	KindState  = "state"
)

type Claims struct {
	jwt.RegisteredClaims
	Kind  string `json:"kind"`
	Email string `json:"email,omitempty"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs claims with HS256. Sub, ID and ExpiresAt are required.
func IssueToken(secret []byte, claims Claims) (string, error) {
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(time.Now())
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature, expiry and kind.
func ParseToken(secret []byte, token, kind string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" || claims.Kind != kind {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// IssueState returns a signed, short-lived value for the OAuth state parameter.
func IssueState(secret []byte, nonce string, ttl time.Duration) (string, error) {
	now := time.Now()
	return IssueToken(secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "oauth-state",
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: KindState,
	})
}

func ParseState(secret []byte, state string) error {
	_, err := ParseToken(secret, state, KindState)
	return err
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
