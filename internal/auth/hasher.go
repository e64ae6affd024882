package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the pluggable credential-hashing capability. Stronger
// algorithms can be substituted without touching the user store or engine.
type PasswordHasher interface {
	// Hash returns a one-way digest of the password
	Hash(password string) (string, error)

	// Verify reports whether the password matches the digest
	Verify(password, digest string) bool
}

// BcryptHasher is the default PasswordHasher implementation
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher with the given cost
// (bcrypt.DefaultCost when cost is out of range)
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns a one-way digest of the password
func (h *BcryptHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether the password matches the digest
func (h *BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
