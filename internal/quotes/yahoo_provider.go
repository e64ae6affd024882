package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider fetches quotes from the Yahoo Finance chart endpoint.
// Each fetch makes a bounded number of attempts with a fixed sleep between
// them; all failure modes collapse into ErrUnavailable for the caller.
type YahooProvider struct {
	baseURL    string
	client     *http.Client
	attempts   int
	retryDelay time.Duration
}

// YahooConfig holds Yahoo provider configuration
type YahooConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	Attempts       int
	RetryDelay     time.Duration
}

// NewYahooProvider creates a new Yahoo Finance quote provider
func NewYahooProvider(cfg YahooConfig) *YahooProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultYahooBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	return &YahooProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: cfg.RequestTimeout},
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
	}
}

// Name returns the name of the provider
func (p *YahooProvider) Name() string {
	return "yahoo"
}

// chartResponse mirrors the subset of the chart payload we consume
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				RegularMarketVolume  int64   `json:"regularMarketVolume"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch returns a current quote for the symbol
func (p *YahooProvider) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		quote, err := p.fetchOnce(ctx, symbol)
		if err == nil {
			return quote, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < p.attempts {
			logger.Debug("Quote fetch failed, retrying",
				logger.String("symbol", symbol),
				logger.Int("attempt", attempt),
				logger.ErrorField(err),
			)
			select {
			case <-ctx.Done():
			case <-time.After(p.retryDelay):
			}
		}
	}

	logger.Debug("Quote unavailable",
		logger.String("symbol", symbol),
		logger.ErrorField(lastErr),
	)
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
}

func (p *YahooProvider) fetchOnce(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", p.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stock-alerts-agent/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("upstream error: %s", payload.Chart.Error.Code)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("no result for symbol %s", symbol)
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("no market price for symbol %s", symbol)
	}

	percentChange := 0.0
	if meta.ChartPreviousClose > 0 {
		percentChange = (meta.RegularMarketPrice - meta.ChartPreviousClose) / meta.ChartPreviousClose * 100
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         meta.RegularMarketPrice,
		PercentChange: percentChange,
		Volume:        meta.RegularMarketVolume,
		FetchedAt:     time.Now(),
	}, nil
}
