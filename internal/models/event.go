package models

import "time"

// NotificationEvent is emitted when a rule fires. It is immutable once
// constructed: the engine hands it to the notifier and does not retain it.
type NotificationEvent struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Symbol    string    `json:"symbol"`
	Quote     Quote     `json:"quote"`
	Condition string    `json:"condition"`
	Channels  []Channel `json:"channels,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Identity returns the rule identity this event was fired for
func (e *NotificationEvent) Identity() string {
	return RuleIdentity(e.Owner, e.Symbol)
}

// Validate validates a NotificationEvent
func (e *NotificationEvent) Validate() error {
	if e.ID == "" {
		return ErrInvalidEventID
	}
	if e.Owner == "" {
		return ErrInvalidOwner
	}
	if e.Symbol == "" {
		return ErrInvalidSymbol
	}
	if e.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
