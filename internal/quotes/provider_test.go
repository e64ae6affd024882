package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

func chartPayload(symbol string, price, prevClose float64, volume int64) string {
	return fmt.Sprintf(`{
		"chart": {
			"result": [{
				"meta": {
					"symbol": %q,
					"regularMarketPrice": %f,
					"regularMarketVolume": %d,
					"chartPreviousClose": %f
				}
			}],
			"error": null
		}
	}`, symbol, price, volume, prevClose)
}

func TestYahooProvider_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/NVDA", r.URL.Path)
		fmt.Fprint(w, chartPayload("NVDA", 130.0, 125.0, 2_000_000))
	}))
	defer server.Close()

	p := NewYahooProvider(YahooConfig{BaseURL: server.URL})

	quote, err := p.Fetch(context.Background(), "nvda")
	require.NoError(t, err)
	assert.Equal(t, "NVDA", quote.Symbol)
	assert.Equal(t, 130.0, quote.Price)
	assert.Equal(t, int64(2_000_000), quote.Volume)
	assert.InDelta(t, 4.0, quote.PercentChange, 0.0001)
	assert.False(t, quote.FetchedAt.IsZero())
}

func TestYahooProvider_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chartPayload("NVDA", 130.0, 125.0, 0))
	}))
	defer server.Close()

	p := NewYahooProvider(YahooConfig{
		BaseURL:    server.URL,
		Attempts:   2,
		RetryDelay: 10 * time.Millisecond,
	})

	quote, err := p.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, 130.0, quote.Price)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestYahooProvider_UnavailableAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewYahooProvider(YahooConfig{
		BaseURL:    server.URL,
		Attempts:   2,
		RetryDelay: 10 * time.Millisecond,
	})

	_, err := p.Fetch(context.Background(), "NVDA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestYahooProvider_UnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer server.Close()

	p := NewYahooProvider(YahooConfig{BaseURL: server.URL, Attempts: 1})

	_, err := p.Fetch(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestYahooProvider_EmptySymbol(t *testing.T) {
	p := NewYahooProvider(YahooConfig{BaseURL: "http://localhost:0"})
	_, err := p.Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestCachedProvider_MemoizesWithinTTL(t *testing.T) {
	mock := NewMockProvider()
	mock.SetQuote("NVDA", models.Quote{Price: 130})

	cached := NewCachedProvider(mock, 1*time.Minute)

	first, err := cached.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)

	// Change the underlying quote; cached value should still be served
	mock.SetQuote("NVDA", models.Quote{Price: 150})

	second, err := cached.Fetch(context.Background(), "nvda")
	require.NoError(t, err)
	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, 1, mock.FetchCount("NVDA"))
}

func TestCachedProvider_RefetchesAfterTTL(t *testing.T) {
	mock := NewMockProvider()
	mock.SetQuote("NVDA", models.Quote{Price: 130})

	cached := NewCachedProvider(mock, 20*time.Millisecond)

	_, err := cached.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	mock.SetQuote("NVDA", models.Quote{Price: 150})

	refreshed, err := cached.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, 150.0, refreshed.Price)
	assert.Equal(t, 2, mock.FetchCount("NVDA"))
}

func TestCachedProvider_DoesNotCacheFailures(t *testing.T) {
	mock := NewMockProvider()
	cached := NewCachedProvider(mock, 1*time.Minute)

	_, err := cached.Fetch(context.Background(), "NVDA")
	require.Error(t, err)

	mock.SetQuote("NVDA", models.Quote{Price: 130})

	quote, err := cached.Fetch(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, 130.0, quote.Price)
}

func TestMockProvider_Unavailable(t *testing.T) {
	mock := NewMockProvider()
	_, err := mock.Fetch(context.Background(), "GHOST")
	assert.True(t, errors.Is(err, ErrUnavailable))
}
