package storage

import (
	"context"
	"time"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

// EventStorage defines the interface for notification-event history
type EventStorage interface {
	// WriteEvent writes a single event to storage
	WriteEvent(ctx context.Context, event *models.NotificationEvent) error

	// WriteEvents writes multiple events to storage (batch operation)
	WriteEvents(ctx context.Context, events []*models.NotificationEvent) error

	// GetEvents retrieves events with filtering options
	GetEvents(ctx context.Context, filter EventFilter) ([]*models.NotificationEvent, error)

	// Close closes the storage connection
	Close() error
}

// EventFilter defines filtering options for event queries
type EventFilter struct {
	Owner     string
	Symbol    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// WriteConfig holds configuration for async batched writes
type WriteConfig struct {
	BatchSize  int
	Interval   time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}
