package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

type stubSender struct {
	channel models.Channel
	err     error
	sent    int
}

func (s *stubSender) Channel() models.Channel { return s.channel }

func (s *stubSender) Send(ctx context.Context, event *models.NotificationEvent) error {
	s.sent++
	return s.err
}

func testEvent(channels ...models.Channel) *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:        "ev-1",
		Owner:     "alice",
		Symbol:    "NVDA",
		Quote:     models.Quote{Symbol: "NVDA", Price: 130, PercentChange: 2.5},
		Condition: "NVDA at 130.00 is inside range [100.00, 140.00]",
		Channels:  channels,
		Timestamp: time.Date(2025, 6, 2, 15, 4, 5, 0, time.UTC),
	}
}

func TestMultiplexer_DeliversToRequestedChannels(t *testing.T) {
	email := &stubSender{channel: models.ChannelEmail}
	slack := &stubSender{channel: models.ChannelSlack}

	m := NewMultiplexer(email, slack)
	results := m.Deliver(context.Background(), testEvent(models.ChannelEmail, models.ChannelSlack))

	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Delivered, "channel %s", res.Channel)
		assert.Empty(t, res.Error)
	}
	assert.Equal(t, 1, email.sent)
	assert.Equal(t, 1, slack.sent)
}

func TestMultiplexer_OnlyRequestedChannelsAttempted(t *testing.T) {
	email := &stubSender{channel: models.ChannelEmail}
	slack := &stubSender{channel: models.ChannelSlack}

	m := NewMultiplexer(email, slack)
	results := m.Deliver(context.Background(), testEvent(models.ChannelSlack))

	require.Len(t, results, 1)
	assert.Equal(t, models.ChannelSlack, results[0].Channel)
	assert.Equal(t, 0, email.sent)
}

func TestMultiplexer_FailureReportedPerChannel(t *testing.T) {
	email := &stubSender{channel: models.ChannelEmail, err: errors.New("mailbox on fire")}
	slack := &stubSender{channel: models.ChannelSlack}

	m := NewMultiplexer(email, slack)
	results := m.Deliver(context.Background(), testEvent(models.ChannelEmail, models.ChannelSlack))

	require.Len(t, results, 2)
	assert.False(t, results[0].Delivered)
	assert.Contains(t, results[0].Error, "mailbox on fire")
	assert.True(t, results[1].Delivered)
}

func TestMultiplexer_UnconfiguredChannel(t *testing.T) {
	m := NewMultiplexer(&stubSender{channel: models.ChannelEmail})
	results := m.Deliver(context.Background(), testEvent(models.ChannelTelegram))

	require.Len(t, results, 1)
	assert.False(t, results[0].Delivered)
	assert.Contains(t, results[0].Error, "not configured")
}

func TestMultiplexer_EmptyChannelSet(t *testing.T) {
	m := NewMultiplexer(&stubSender{channel: models.ChannelEmail})
	results := m.Deliver(context.Background(), testEvent())
	assert.Empty(t, results)
}

func TestSlackSender_Send(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSlackSender(server.URL, time.Second)
	err := s.Send(context.Background(), testEvent(models.ChannelSlack))
	require.NoError(t, err)
	assert.Contains(t, received["text"], "NVDA")
	assert.Contains(t, received["text"], "130.00")
}

func TestSlackSender_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusGone)
	}))
	defer server.Close()

	s := NewSlackSender(server.URL, time.Second)
	err := s.Send(context.Background(), testEvent(models.ChannelSlack))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
}

func TestTelegramSender_Send(t *testing.T) {
	var path string
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewTelegramSender(TelegramConfig{
		BaseURL:  server.URL,
		BotToken: "token123",
		ChatID:   "42",
	})
	err := s.Send(context.Background(), testEvent(models.ChannelTelegram))
	require.NoError(t, err)
	assert.Equal(t, "/bottoken123/sendMessage", path)
	assert.Equal(t, "42", received["chat_id"])
	assert.Contains(t, received["text"], "NVDA")
}

type stubDirectory struct {
	emails map[string]string
}

func (d *stubDirectory) EmailFor(ctx context.Context, owner string) (string, error) {
	email, ok := d.emails[owner]
	if !ok {
		return "", errors.New("owner not found")
	}
	return email, nil
}

func TestEmailSender_Send(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewEmailSender(EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "alerts@example.com",
	}, &stubDirectory{emails: map[string]string{"alice": "alice@example.com"}})
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), testEvent(models.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: Stock alert: NVDA")
	assert.Contains(t, msg, "To: alice@example.com")
	assert.True(t, strings.Contains(msg, "inside range"))
}

func TestEmailSender_UnknownOwner(t *testing.T) {
	s := NewEmailSender(EmailConfig{Host: "smtp.example.com", Port: 587}, &stubDirectory{emails: map[string]string{}})
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("sendMail should not be called")
		return nil
	}

	err := s.Send(context.Background(), testEvent(models.ChannelEmail))
	require.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	msg := formatMessage(testEvent())
	assert.Contains(t, msg, "[NVDA]")
	assert.Contains(t, msg, "Price: 130.00 (+2.50%)")
	assert.Contains(t, msg, "2025-06-02")
}
