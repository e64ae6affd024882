package models

import (
	"testing"
	"time"
)

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{
			name: "valid rule",
			rule: Rule{Symbol: "NVDA", MinPrice: 100, MaxPrice: 140, Active: true},
		},
		{
			name:    "empty symbol",
			rule:    Rule{MinPrice: 100, MaxPrice: 140},
			wantErr: ErrInvalidSymbol,
		},
		{
			name:    "whitespace symbol",
			rule:    Rule{Symbol: "   ", MinPrice: 100, MaxPrice: 140},
			wantErr: ErrInvalidSymbol,
		},
		{
			name:    "inverted bounds",
			rule:    Rule{Symbol: "NVDA", MinPrice: 140, MaxPrice: 100},
			wantErr: ErrInvalidBounds,
		},
		{
			name: "zero max is unbounded, not inverted",
			rule: Rule{Symbol: "NVDA", MinPrice: 140, MaxPrice: 0},
		},
		{
			name: "zero min is unbounded",
			rule: Rule{Symbol: "NVDA", MinPrice: 0, MaxPrice: 100},
		},
		{
			name:    "negative bound",
			rule:    Rule{Symbol: "NVDA", MinPrice: -1, MaxPrice: 100},
			wantErr: ErrNegativeBound,
		},
		{
			name:    "negative volume floor",
			rule:    Rule{Symbol: "NVDA", MinVolume: -100},
			wantErr: ErrInvalidVolume,
		},
		{
			name:    "unknown channel",
			rule:    Rule{Symbol: "NVDA", Channels: []Channel{"pager"}},
			wantErr: ErrInvalidChannel,
		},
		{
			name: "known channels",
			rule: Rule{Symbol: "NVDA", Channels: []Channel{ChannelEmail, ChannelSlack, ChannelTelegram}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRule_RangeSatisfied(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		price float64
		want  bool
	}{
		{"inside range", Rule{MinPrice: 100, MaxPrice: 140}, 130, true},
		{"below range", Rule{MinPrice: 100, MaxPrice: 140}, 99.99, false},
		{"above range", Rule{MinPrice: 100, MaxPrice: 140}, 150, false},
		{"at lower bound", Rule{MinPrice: 100, MaxPrice: 140}, 100, true},
		{"at upper bound", Rule{MinPrice: 100, MaxPrice: 140}, 140, true},
		{"zero min disables lower check", Rule{MinPrice: 0, MaxPrice: 140}, 0.01, true},
		{"zero max disables upper check", Rule{MinPrice: 100, MaxPrice: 0}, 10000, true},
		{"both zero matches anything", Rule{}, 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.RangeSatisfied(tt.price); got != tt.want {
				t.Errorf("RangeSatisfied(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestRule_VolumeSatisfied(t *testing.T) {
	r := Rule{MinVolume: 1_000_000}
	if r.VolumeSatisfied(500_000) {
		t.Error("Expected volume below floor to fail")
	}
	if !r.VolumeSatisfied(1_000_000) {
		t.Error("Expected volume at floor to pass")
	}

	// Missing floor means no constraint
	unconstrained := Rule{}
	if !unconstrained.VolumeSatisfied(0) {
		t.Error("Expected missing min_volume to pass any volume")
	}
}

func TestRule_Normalize(t *testing.T) {
	r := Rule{Symbol: "  nvda "}
	r.Normalize()
	if r.Symbol != "NVDA" {
		t.Errorf("Normalize() symbol = %q, want %q", r.Symbol, "NVDA")
	}
}

func TestRuleIdentity(t *testing.T) {
	if got := RuleIdentity("alice", "nvda"); got != "alice|NVDA" {
		t.Errorf("RuleIdentity() = %q, want %q", got, "alice|NVDA")
	}
}

func TestQuote_Validate(t *testing.T) {
	q := Quote{Symbol: "NVDA", Price: 130.5, FetchedAt: time.Now()}
	if err := q.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	bad := Quote{Symbol: "NVDA", Price: 0}
	if err := bad.Validate(); err != ErrInvalidPrice {
		t.Errorf("Validate() error = %v, want %v", err, ErrInvalidPrice)
	}
}

func TestNotificationEvent_Validate(t *testing.T) {
	ev := NotificationEvent{
		ID:        "ev-1",
		Owner:     "alice",
		Symbol:    "NVDA",
		Timestamp: time.Now(),
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if ev.Identity() != "alice|NVDA" {
		t.Errorf("Identity() = %q, want %q", ev.Identity(), "alice|NVDA")
	}

	ev.ID = ""
	if err := ev.Validate(); err != ErrInvalidEventID {
		t.Errorf("Validate() error = %v, want %v", err, ErrInvalidEventID)
	}
}
