package quotes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

// MockProvider is an in-memory Provider for tests and offline mode.
// Symbols without a configured quote return ErrUnavailable.
type MockProvider struct {
	mu         sync.Mutex
	quotes     map[string]models.Quote
	fetchCount map[string]int
}

// NewMockProvider creates a new mock quote provider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		quotes:     make(map[string]models.Quote),
		fetchCount: make(map[string]int),
	}
}

// Name returns the name of the provider
func (m *MockProvider) Name() string {
	return "mock"
}

// SetQuote configures the quote returned for a symbol
func (m *MockProvider) SetQuote(symbol string, quote models.Quote) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	quote.Symbol = key

	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[key] = quote
}

// RemoveQuote makes a symbol unavailable again
func (m *MockProvider) RemoveQuote(symbol string) {
	key := strings.ToUpper(strings.TrimSpace(symbol))

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotes, key)
}

// FetchCount returns how many times a symbol was fetched
func (m *MockProvider) FetchCount(symbol string) int {
	key := strings.ToUpper(strings.TrimSpace(symbol))

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCount[key]
}

// Fetch returns the configured quote for a symbol, or ErrUnavailable
func (m *MockProvider) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return nil, ErrInvalidSymbol
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchCount[key]++

	quote, ok := m.quotes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, key)
	}
	if quote.FetchedAt.IsZero() {
		quote.FetchedAt = time.Now()
	}
	return &quote, nil
}
