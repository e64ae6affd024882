package models

import (
	"strings"
	"time"
)

// Channel identifies a notification delivery channel
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSlack    Channel = "slack"
	ChannelTelegram Channel = "telegram"
)

// Valid returns whether the channel is a known delivery channel
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSlack, ChannelTelegram:
		return true
	}
	return false
}

// Rule represents a price-range watch rule for a ticker symbol.
// A rule is identified by its owner's ID plus its uppercased symbol;
// saving a rule with an existing symbol overwrites that rule in place.
type Rule struct {
	Symbol      string    `json:"symbol"`
	MinPrice    float64   `json:"min_price"`
	MaxPrice    float64   `json:"max_price"`
	TargetPrice float64   `json:"target_price,omitempty"`
	MinVolume   int64     `json:"min_volume,omitempty"`
	Channels    []Channel `json:"channels,omitempty"`
	Active      bool      `json:"active"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Normalize uppercases and trims the rule's symbol
func (r *Rule) Normalize() {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
}

// Validate validates a Rule
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return ErrInvalidSymbol
	}
	if r.MinPrice < 0 || r.MaxPrice < 0 || r.TargetPrice < 0 {
		return ErrNegativeBound
	}
	// A zero bound means "unbounded on that side"; the ordering invariant
	// only applies when both bounds are real.
	if r.MinPrice > 0 && r.MaxPrice > 0 && r.MaxPrice < r.MinPrice {
		return ErrInvalidBounds
	}
	if r.MinVolume < 0 {
		return ErrInvalidVolume
	}
	for _, ch := range r.Channels {
		if !ch.Valid() {
			return ErrInvalidChannel
		}
	}
	return nil
}

// RangeSatisfied reports whether price falls inside the rule's range.
// A zero min_price disables the lower check, a zero max_price the upper check.
func (r *Rule) RangeSatisfied(price float64) bool {
	if r.MinPrice > 0 && price < r.MinPrice {
		return false
	}
	if r.MaxPrice > 0 && price > r.MaxPrice {
		return false
	}
	return true
}

// VolumeSatisfied reports whether volume meets the rule's floor.
// A missing min_volume means no volume constraint.
func (r *Rule) VolumeSatisfied(volume int64) bool {
	if r.MinVolume <= 0 {
		return true
	}
	return volume >= r.MinVolume
}

// RuleIdentity builds the identity key for a rule, used for cooldown tracking
func RuleIdentity(owner, symbol string) string {
	return owner + "|" + strings.ToUpper(symbol)
}
