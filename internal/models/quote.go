package models

import "time"

// Quote represents a point-in-time price snapshot for a symbol.
// Quotes are transient: they are fetched fresh (or from a bounded-lifetime
// cache) per evaluation pass and never persisted.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PercentChange float64   `json:"percent_change"`
	Volume        int64     `json:"volume,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Validate validates a Quote
func (q *Quote) Validate() error {
	if q.Symbol == "" {
		return ErrInvalidSymbol
	}
	if q.Price <= 0 {
		return ErrInvalidPrice
	}
	if q.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}
