package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

// SlackSender delivers notifications to a Slack incoming webhook
type SlackSender struct {
	webhookURL string
	client     *http.Client
}

// NewSlackSender creates a Slack webhook sender
func NewSlackSender(webhookURL string, timeout time.Duration) *SlackSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Channel returns the channel this sender serves
func (s *SlackSender) Channel() models.Channel {
	return models.ChannelSlack
}

// Send posts the event to the webhook
func (s *SlackSender) Send(ctx context.Context, event *models.NotificationEvent) error {
	payload, err := json.Marshal(map[string]string{
		"text": formatMessage(event),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
