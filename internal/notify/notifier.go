package notify

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

var deliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notify_deliveries_total",
		Help: "Total number of notification delivery attempts, by channel and status",
	},
	[]string{"channel", "status"}, // status: "delivered", "failed", "unconfigured"
)

// DeliveryResult reports the outcome of one channel's delivery attempt
type DeliveryResult struct {
	Channel   models.Channel `json:"channel"`
	Delivered bool           `json:"delivered"`
	Error     string         `json:"error,omitempty"`
}

// Notifier delivers a notification event through its requested channels.
// Delivery is fire-and-forget from the engine's perspective: failures are
// reported per channel and logged, never retried here.
type Notifier interface {
	Deliver(ctx context.Context, event *models.NotificationEvent) []DeliveryResult
}

// Sender delivers an event through a single channel
type Sender interface {
	// Channel returns the channel this sender serves
	Channel() models.Channel

	// Send delivers the event
	Send(ctx context.Context, event *models.NotificationEvent) error
}

// Multiplexer fans an event out to every requested channel that has a
// configured sender. Requested channels without a sender report a failed
// result rather than an error to the caller.
type Multiplexer struct {
	senders map[models.Channel]Sender
}

// NewMultiplexer creates a notifier fanning out to the given senders
func NewMultiplexer(senders ...Sender) *Multiplexer {
	m := &Multiplexer{
		senders: make(map[models.Channel]Sender, len(senders)),
	}
	for _, s := range senders {
		m.senders[s.Channel()] = s
	}
	return m
}

// Channels returns the configured channels
func (m *Multiplexer) Channels() []models.Channel {
	channels := make([]models.Channel, 0, len(m.senders))
	for ch := range m.senders {
		channels = append(channels, ch)
	}
	return channels
}

// Deliver attempts delivery on every channel the event requests
func (m *Multiplexer) Deliver(ctx context.Context, event *models.NotificationEvent) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(event.Channels))

	for _, ch := range event.Channels {
		sender, ok := m.senders[ch]
		if !ok {
			deliveriesTotal.WithLabelValues(string(ch), "unconfigured").Inc()
			results = append(results, DeliveryResult{
				Channel: ch,
				Error:   fmt.Sprintf("channel %s is not configured", ch),
			})
			continue
		}

		if err := sender.Send(ctx, event); err != nil {
			deliveriesTotal.WithLabelValues(string(ch), "failed").Inc()
			logger.Warn("Notification delivery failed",
				logger.String("channel", string(ch)),
				logger.String("event_id", event.ID),
				logger.String("symbol", event.Symbol),
				logger.ErrorField(err),
			)
			results = append(results, DeliveryResult{Channel: ch, Error: err.Error()})
			continue
		}

		deliveriesTotal.WithLabelValues(string(ch), "delivered").Inc()
		logger.Debug("Notification delivered",
			logger.String("channel", string(ch)),
			logger.String("event_id", event.ID),
		)
		results = append(results, DeliveryResult{Channel: ch, Delivered: true})
	}

	return results
}

// formatMessage builds the notification text shared by all channels
func formatMessage(event *models.NotificationEvent) string {
	return fmt.Sprintf("[%s] %s\nPrice: %.2f (%+.2f%%)\nTime: %s",
		event.Symbol,
		event.Condition,
		event.Quote.Price,
		event.Quote.PercentChange,
		event.Timestamp.Format("2006-01-02 15:04:05 MST"),
	)
}
