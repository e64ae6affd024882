package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

// Store defines the interface for loading and replacing per-owner rule sets.
// Rules are identified by owner plus uppercased symbol: saving a rule whose
// symbol already exists overwrites that rule in place, preserving its
// position in the owner's list. Concurrent writers for the same owner are
// last-writer-wins.
type Store interface {
	// Load returns the owner's rules in insertion order
	Load(ctx context.Context, owner string) ([]models.Rule, error)

	// Replace replaces the owner's entire rule list
	Replace(ctx context.Context, owner string, ruleList []models.Rule) error

	// Upsert adds a rule, or overwrites the rule with the same symbol
	Upsert(ctx context.Context, owner string, rule models.Rule) error

	// Delete removes the rule with the given symbol
	Delete(ctx context.Context, owner string, symbol string) error

	// Owners returns all owners that have at least one rule
	Owners(ctx context.Context) ([]string, error)
}

// InMemoryStore is an in-memory implementation of Store
type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[string][]models.Rule
}

// NewInMemoryStore creates a new in-memory rule store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules: make(map[string][]models.Rule),
	}
}

// Load returns the owner's rules in insertion order
func (s *InMemoryStore) Load(ctx context.Context, owner string) ([]models.Rule, error) {
	if owner == "" {
		return nil, models.ErrInvalidOwner
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyRules(s.rules[owner]), nil
}

// Replace replaces the owner's entire rule list, deduplicating by symbol
// (a later rule with the same symbol overwrites the earlier one in place)
func (s *InMemoryStore) Replace(ctx context.Context, owner string, ruleList []models.Rule) error {
	if owner == "" {
		return models.ErrInvalidOwner
	}

	deduped, err := normalizeList(ruleList)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(deduped) == 0 {
		delete(s.rules, owner)
		return nil
	}
	s.rules[owner] = deduped
	return nil
}

// Upsert adds a rule, or overwrites the rule with the same symbol in place
func (s *InMemoryStore) Upsert(ctx context.Context, owner string, rule models.Rule) error {
	if owner == "" {
		return models.ErrInvalidOwner
	}

	rule.Normalize()
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing := s.rules[owner]
	for i := range existing {
		if existing[i].Symbol == rule.Symbol {
			// Fields are overwritten, not merged; CreatedAt and list
			// position are preserved.
			rule.CreatedAt = existing[i].CreatedAt
			rule.UpdatedAt = now
			existing[i] = rule
			return nil
		}
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[owner] = append(existing, rule)
	return nil
}

// Delete removes the rule with the given symbol
func (s *InMemoryStore) Delete(ctx context.Context, owner string, symbol string) error {
	if owner == "" {
		return models.ErrInvalidOwner
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.rules[owner]
	for i := range existing {
		if existing[i].Symbol == symbol {
			s.rules[owner] = append(existing[:i:i], existing[i+1:]...)
			if len(s.rules[owner]) == 0 {
				delete(s.rules, owner)
			}
			return nil
		}
	}

	return fmt.Errorf("rule not found: %s", symbol)
}

// Owners returns all owners that have at least one rule, sorted
func (s *InMemoryStore) Owners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0, len(s.rules))
	for owner := range s.rules {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

// snapshot returns a deep copy of the full owner → rules mapping
func (s *InMemoryStore) snapshot() map[string][]models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.Rule, len(s.rules))
	for owner, ruleList := range s.rules {
		out[owner] = copyRules(ruleList)
	}
	return out
}

// restore replaces the full owner → rules mapping
func (s *InMemoryStore) restore(all map[string][]models.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = all
}

// normalizeList normalizes and validates a rule list, deduplicating by
// symbol while preserving the position of the first occurrence
func normalizeList(ruleList []models.Rule) ([]models.Rule, error) {
	deduped := make([]models.Rule, 0, len(ruleList))
	index := make(map[string]int, len(ruleList))
	now := time.Now()

	for _, rule := range ruleList {
		rule.Normalize()
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule %q: %w", rule.Symbol, err)
		}
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = now
		}
		if rule.UpdatedAt.IsZero() {
			rule.UpdatedAt = now
		}

		if i, seen := index[rule.Symbol]; seen {
			deduped[i] = rule
			continue
		}
		index[rule.Symbol] = len(deduped)
		deduped = append(deduped, rule)
	}

	return deduped, nil
}

// copyRules creates a deep copy of a rule list
func copyRules(ruleList []models.Rule) []models.Rule {
	if ruleList == nil {
		return []models.Rule{}
	}

	copied := make([]models.Rule, len(ruleList))
	for i, rule := range ruleList {
		copied[i] = rule
		if rule.Channels != nil {
			copied[i].Channels = append([]models.Channel(nil), rule.Channels...)
		}
	}
	return copied
}
