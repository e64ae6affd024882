package models

import (
	"strings"
	"time"
)

// User owns zero or more watch rules. The username is the partition key
// for the rule store.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate validates a User
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrInvalidUsername
	}
	if u.PasswordHash == "" {
		return ErrInvalidPassword
	}
	return nil
}
