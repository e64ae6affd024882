package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orsela/stock-alerts-agent/internal/auth"
	"github.com/orsela/stock-alerts-agent/internal/engine"
	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/internal/notify"
	"github.com/orsela/stock-alerts-agent/internal/quotes"
	"github.com/orsela/stock-alerts-agent/internal/rules"
	"github.com/orsela/stock-alerts-agent/internal/storage"
)

type testEnv struct {
	server   *Server
	provider *quotes.MockProvider
	events   *storage.MemoryEventStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userStore, err := auth.NewFileUserStore(
		filepath.Join(t.TempDir(), "users.json"),
		auth.NewBcryptHasher(4),
	)
	require.NoError(t, err)

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	provider := quotes.NewMockProvider()
	events := storage.NewMemoryEventStorage()

	server := NewServer(
		rules.NewInMemoryStore(),
		userStore,
		tokens,
		engine.NewEngine(engine.NewMemoryCooldownTracker(), time.Hour),
		provider,
		notify.NewMultiplexer(),
		events,
		0,
	)

	return &testEnv{server: server, provider: provider, events: events}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	token := env.registerAndLogin(t, "alice")
	assert.NotEmpty(t, token)

	// Duplicate username
	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "hunter22",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Correct credentials
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: "alice",
		Password: "hunter22",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Wrong password
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Username: "alice",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRulesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/rules", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpsertAndListRules(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/v1/rules", token, models.Rule{
		Symbol:   "nvda",
		MinPrice: 100,
		MaxPrice: 200,
		Channels: []models.Channel{models.ChannelEmail},
		Active:   true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	// Response echoes the stored, normalized symbol
	assert.Contains(t, rec.Body.String(), `"symbol":"NVDA"`)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Owner string        `json:"owner"`
		Rules []models.Rule `json:"rules"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Owner)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "NVDA", resp.Rules[0].Symbol)
}

func TestUpsertRejectsInvalidBounds(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/v1/rules", token, models.Rule{
		Symbol:   "NVDA",
		MinPrice: 200,
		MaxPrice: 100,
		Active:   true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceRules(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodPut, "/api/v1/rules", token, []models.Rule{
		{Symbol: "NVDA", MinPrice: 100, Active: true},
		{Symbol: "AAPL", MaxPrice: 150, Active: true},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
}

func TestDeleteRule(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodDelete, "/api/v1/rules/NVDA", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/rules", token, models.Rule{
		Symbol: "NVDA", MinPrice: 100, Active: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/rules/NVDA", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", token, nil)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestScanFiresAndRespectsCooldown(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	env.provider.SetQuote("NVDA", models.Quote{Price: 150, Volume: 1000})

	rec := env.do(t, http.MethodPost, "/api/v1/rules", token, models.Rule{
		Symbol:   "NVDA",
		MinPrice: 100,
		MaxPrice: 200,
		Channels: []models.Channel{models.ChannelSlack},
		Active:   true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/scan", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Scanned)
	require.Equal(t, 1, resp.Fired)
	assert.Equal(t, "NVDA", resp.Results[0].Event.Symbol)

	// No slack sender is configured in the test notifier
	require.Len(t, resp.Results[0].Deliveries, 1)
	assert.False(t, resp.Results[0].Deliveries[0].Delivered)

	// Second scan inside the cooldown window fires nothing
	rec = env.do(t, http.MethodPost, "/api/v1/scan", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Fired)
}

func TestAlertsHistory(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice")

	env.provider.SetQuote("NVDA", models.Quote{Price: 150})
	rec := env.do(t, http.MethodPost, "/api/v1/rules", token, models.Rule{
		Symbol: "NVDA", MinPrice: 100, Active: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/scan", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/alerts?symbol=nvda", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Alerts []*models.NotificationEvent `json:"alerts"`
		Count  int                         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "alice", resp.Alerts[0].Owner)
	assert.Equal(t, "NVDA", resp.Alerts[0].Symbol)

	rec = env.do(t, http.MethodGet, "/api/v1/alerts?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnersAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerAndLogin(t, "alice")
	bob := env.registerAndLogin(t, "bob")

	rec := env.do(t, http.MethodPost, "/api/v1/rules", alice, models.Rule{
		Symbol: "NVDA", MinPrice: 100, Active: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}
