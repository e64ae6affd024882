package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

// MemoryEventStorage keeps event history in memory. It serves as the
// default when no database is configured and as a test double.
type MemoryEventStorage struct {
	mu     sync.RWMutex
	events []*models.NotificationEvent
}

// NewMemoryEventStorage creates an in-memory event store
func NewMemoryEventStorage() *MemoryEventStorage {
	return &MemoryEventStorage{
		events: make([]*models.NotificationEvent, 0),
	}
}

// WriteEvent writes a single event
func (s *MemoryEventStorage) WriteEvent(ctx context.Context, event *models.NotificationEvent) error {
	return s.WriteEvents(ctx, []*models.NotificationEvent{event})
}

// WriteEvents appends events to the history
func (s *MemoryEventStorage) WriteEvents(ctx context.Context, events []*models.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range events {
		if err := event.Validate(); err != nil {
			continue
		}
		copied := *event
		s.events = append(s.events, &copied)
	}
	return nil
}

// GetEvents retrieves events matching the filter, newest first
func (s *MemoryEventStorage) GetEvents(ctx context.Context, filter EventFilter) ([]*models.NotificationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.NotificationEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if filter.Owner != "" && event.Owner != filter.Owner {
			continue
		}
		if filter.Symbol != "" && event.Symbol != strings.ToUpper(filter.Symbol) {
			continue
		}
		if !filter.StartTime.IsZero() && event.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && event.Timestamp.After(filter.EndTime) {
			continue
		}

		copied := *event
		matched = append(matched, &copied)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}

	return matched, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryEventStorage) Close() error {
	return nil
}
