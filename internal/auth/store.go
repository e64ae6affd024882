package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

var (
	// ErrUserExists is returned when registering a taken username
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned on a failed login
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when looking up an unknown user
	ErrUserNotFound = errors.New("user not found")
)

// UserStore manages user accounts
type UserStore interface {
	// Register creates a new user with a hashed password
	Register(ctx context.Context, username, email, password string) (*models.User, error)

	// Authenticate verifies credentials and returns the user
	Authenticate(ctx context.Context, username, password string) (*models.User, error)

	// EmailFor returns the email address registered for a username
	EmailFor(ctx context.Context, username string) (string, error)
}

// FileUserStore is a UserStore backed by a flat JSON file mapping username
// to account record. Unreadable files load as an empty user set; write
// errors surface to the caller.
type FileUserStore struct {
	path   string
	hasher PasswordHasher

	mu    sync.RWMutex
	users map[string]models.User
}

// NewFileUserStore creates a file-backed user store
func NewFileUserStore(path string, hasher PasswordHasher) (*FileUserStore, error) {
	if path == "" {
		return nil, fmt.Errorf("user store path cannot be empty")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher cannot be nil")
	}

	s := &FileUserStore{
		path:   path,
		hasher: hasher,
		users:  make(map[string]models.User),
	}
	s.load()
	return s, nil
}

func (s *FileUserStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read users file, starting empty",
				logger.ErrorField(err),
				logger.String("path", s.path),
			)
		}
		return
	}

	var users map[string]models.User
	if err := json.Unmarshal(data, &users); err != nil {
		logger.Warn("Failed to parse users file, starting empty",
			logger.ErrorField(err),
			logger.String("path", s.path),
		)
		return
	}

	s.users = users
}

func (s *FileUserStore) save() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create users directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace users file: %w", err)
	}

	return nil
}

// Register creates a new user with a hashed password
func (s *FileUserStore) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, models.ErrInvalidUsername
	}
	if password == "" {
		return nil, models.ErrInvalidPassword
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, ErrUserExists
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: digest,
		CreatedAt:    time.Now(),
	}
	s.users[username] = user

	if err := s.save(); err != nil {
		delete(s.users, username)
		return nil, err
	}

	logger.Info("Registered user", logger.String("username", username))
	return &user, nil
}

// Authenticate verifies credentials and returns the user
func (s *FileUserStore) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	user, exists := s.users[username]
	s.mu.RUnlock()

	if !exists || !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// EmailFor returns the email address registered for a username
func (s *FileUserStore) EmailFor(ctx context.Context, username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	user, exists := s.users[username]
	s.mu.RUnlock()

	if !exists {
		return "", ErrUserNotFound
	}
	return user.Email, nil
}
