package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager issues and validates HS256 JWTs carrying the username
type TokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewTokenManager creates a token manager. The secret must be non-empty.
func NewTokenManager(secret string, expiry time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret cannot be empty")
	}
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	return &TokenManager{
		secret: []byte(secret),
		expiry: expiry,
	}, nil
}

// Issue creates a signed token for the username
func (m *TokenManager) Issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": username,
		"iat":     now.Unix(),
		"exp":     now.Add(m.expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the username it was issued for
func (m *TokenManager) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("user_id not found in token")
}
