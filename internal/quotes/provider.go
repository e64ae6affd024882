package quotes

import (
	"context"
	"errors"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

var (
	// ErrUnavailable is returned when a quote cannot be produced for a
	// symbol (unknown symbol, rate limit, upstream outage). It is a soft
	// failure: the evaluation engine skips the rule for the pass.
	ErrUnavailable = errors.New("quote unavailable")
	// ErrInvalidSymbol is returned when an empty symbol is requested
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Provider defines the interface for market data quote sources.
// Implementations must enforce their own timeout/retry bounds and return
// ErrUnavailable rather than hang or panic into the caller.
type Provider interface {
	// Fetch returns a current quote for the symbol
	Fetch(ctx context.Context, symbol string) (*models.Quote, error)

	// Name returns the name of the provider (e.g. "yahoo", "mock")
	Name() string
}
