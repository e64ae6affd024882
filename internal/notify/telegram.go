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

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// TelegramSender delivers notifications through the Telegram bot API
type TelegramSender struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramSender creates a Telegram bot sender
func NewTelegramSender(cfg TelegramConfig) *TelegramSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TelegramSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Channel returns the channel this sender serves
func (s *TelegramSender) Channel() models.Channel {
	return models.ChannelTelegram
}

// Send posts the event via the bot's sendMessage method
func (s *TelegramSender) Send(ctx context.Context, event *models.NotificationEvent) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": s.cfg.ChatID,
		"text":    formatMessage(event),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.cfg.BaseURL, s.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
