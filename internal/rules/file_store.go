package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

// FileStore is a Store backed by a flat JSON file holding a mapping from
// owner to an ordered rule list. The whole file is rewritten on every
// mutation via an atomic rename.
//
// An unreadable or corrupt file loads as an empty rule set (fail open);
// write errors are surfaced to the caller.
type FileStore struct {
	path string
	mem  *InMemoryStore
}

// NewFileStore creates a file-backed rule store, loading existing rules
// from path if the file is present
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("rule store path cannot be empty")
	}

	s := &FileStore{
		path: path,
		mem:  NewInMemoryStore(),
	}
	s.load()
	return s, nil
}

// load reads the rules file into memory. Errors are logged, not returned:
// a missing or unreadable file is treated as an empty rule set.
func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read rules file, starting with empty rule set",
				logger.ErrorField(err),
				logger.String("path", s.path),
			)
		}
		return
	}

	var all map[string][]models.Rule
	if err := json.Unmarshal(data, &all); err != nil {
		logger.Warn("Failed to parse rules file, starting with empty rule set",
			logger.ErrorField(err),
			logger.String("path", s.path),
		)
		return
	}

	// Stored rules go through the same normalization as saved ones, so a
	// hand-edited or legacy file cannot smuggle in a lowercase symbol that
	// Upsert/Delete would then fail to match. Invalid entries are dropped,
	// never loaded.
	cleaned := make(map[string][]models.Rule, len(all))
	for owner, ruleList := range all {
		kept := make([]models.Rule, 0, len(ruleList))
		index := make(map[string]int, len(ruleList))
		for _, rule := range ruleList {
			rule.Normalize()
			if err := rule.Validate(); err != nil {
				logger.Warn("Dropping invalid rule from rules file",
					logger.ErrorField(err),
					logger.String("owner", owner),
					logger.String("symbol", rule.Symbol),
				)
				continue
			}
			if i, seen := index[rule.Symbol]; seen {
				kept[i] = rule
				continue
			}
			index[rule.Symbol] = len(kept)
			kept = append(kept, rule)
		}
		if len(kept) > 0 {
			cleaned[owner] = kept
		}
	}

	s.mem.restore(cleaned)
}

// save writes the full rule set to disk atomically
func (s *FileStore) save() error {
	all := s.mem.snapshot()

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create rules directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace rules file: %w", err)
	}

	return nil
}

// Load returns the owner's rules in insertion order
func (s *FileStore) Load(ctx context.Context, owner string) ([]models.Rule, error) {
	return s.mem.Load(ctx, owner)
}

// Replace replaces the owner's entire rule list and persists it
func (s *FileStore) Replace(ctx context.Context, owner string, ruleList []models.Rule) error {
	if err := s.mem.Replace(ctx, owner, ruleList); err != nil {
		return err
	}
	return s.save()
}

// Upsert adds or overwrites a rule and persists the change
func (s *FileStore) Upsert(ctx context.Context, owner string, rule models.Rule) error {
	if err := s.mem.Upsert(ctx, owner, rule); err != nil {
		return err
	}
	return s.save()
}

// Delete removes a rule and persists the change
func (s *FileStore) Delete(ctx context.Context, owner string, symbol string) error {
	if err := s.mem.Delete(ctx, owner, symbol); err != nil {
		return err
	}
	return s.save()
}

// Owners returns all owners that have at least one rule
func (s *FileStore) Owners(ctx context.Context) ([]string, error) {
	return s.mem.Owners(ctx)
}
