package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/orsela/stock-alerts-agent/internal/auth"
	"github.com/orsela/stock-alerts-agent/internal/engine"
	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/internal/notify"
	"github.com/orsela/stock-alerts-agent/internal/quotes"
	"github.com/orsela/stock-alerts-agent/internal/rules"
	"github.com/orsela/stock-alerts-agent/internal/storage"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

// Server is the HTTP API for managing watch rules and triggering scans
type Server struct {
	router *mux.Router

	ruleStore rules.Store
	userStore auth.UserStore
	tokens    *auth.TokenManager
	engine    *engine.Engine
	provider  quotes.Provider
	notifier  notify.Notifier
	events    storage.EventStorage

	rateLimitRPS int
}

// NewServer creates the API server and registers its routes
func NewServer(
	ruleStore rules.Store,
	userStore auth.UserStore,
	tokens *auth.TokenManager,
	eng *engine.Engine,
	provider quotes.Provider,
	notifier notify.Notifier,
	events storage.EventStorage,
	rateLimitRPS int,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		ruleStore:    ruleStore,
		userStore:    userStore,
		tokens:       tokens,
		engine:       eng,
		provider:     provider,
		notifier:     notifier,
		events:       events,
		rateLimitRPS: rateLimitRPS,
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(recoveryMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(corsMiddleware)
	s.router.Use(newRateLimitMiddleware(s.rateLimitRPS))

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware(s.tokens))
	protected.HandleFunc("/rules", s.handleListRules).Methods(http.MethodGet)
	protected.HandleFunc("/rules", s.handleUpsertRule).Methods(http.MethodPost)
	protected.HandleFunc("/rules", s.handleReplaceRules).Methods(http.MethodPut)
	protected.HandleFunc("/rules/{symbol}", s.handleDeleteRule).Methods(http.MethodDelete)
	protected.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	protected.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type scanResult struct {
	Event      models.NotificationEvent `json:"event"`
	Deliveries []notify.DeliveryResult  `json:"deliveries"`
}

type scanResponse struct {
	Scanned int          `json:"scanned"`
	Fired   int          `json:"fired"`
	Results []scanResult `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.userStore.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			respondWithError(w, http.StatusConflict, "Username is already taken")
		case errors.Is(err, models.ErrInvalidUsername), errors.Is(err, models.ErrInvalidPassword):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Error("Failed to register user", logger.ErrorField(err))
			respondWithError(w, http.StatusInternalServerError, "Failed to register user")
		}
		return
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		logger.Error("Failed to issue token", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusCreated, tokenResponse{Token: token, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.userStore.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		logger.Error("Failed to issue token", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{Token: token, Username: user.Username})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	ruleList, err := s.ruleStore.Load(r.Context(), owner)
	if err != nil {
		logger.Error("Failed to load rules", logger.String("owner", owner), logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to load rules")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"owner": owner,
		"rules": ruleList,
		"count": len(ruleList),
	})
}

func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	var rule models.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.Normalize()

	if err := s.ruleStore.Upsert(r.Context(), owner, rule); err != nil {
		if isValidationError(err) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Failed to save rule", logger.String("owner", owner), logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to save rule")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status": "saved",
		"symbol": rule.Symbol,
	})
}

func (s *Server) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	var ruleList []models.Rule
	if err := json.NewDecoder(r.Body).Decode(&ruleList); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.ruleStore.Replace(r.Context(), owner, ruleList); err != nil {
		if isValidationError(err) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Failed to replace rules", logger.String("owner", owner), logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to replace rules")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "replaced",
		"count":  len(ruleList),
	})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	symbol := mux.Vars(r)["symbol"]

	if err := s.ruleStore.Delete(r.Context(), owner, symbol); err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"symbol": symbol,
	})
}

// handleScan runs one evaluation pass over the caller's rules, delivers the
// resulting notifications and records them in the event history
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	ruleList, err := s.ruleStore.Load(r.Context(), owner)
	if err != nil {
		logger.Error("Failed to load rules for scan", logger.String("owner", owner), logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to load rules")
		return
	}

	events := s.engine.Evaluate(r.Context(), owner, ruleList, s.provider, time.Now())

	results := make([]scanResult, 0, len(events))
	stored := make([]*models.NotificationEvent, 0, len(events))
	for i := range events {
		deliveries := s.notifier.Deliver(r.Context(), &events[i])
		results = append(results, scanResult{Event: events[i], Deliveries: deliveries})
		stored = append(stored, &events[i])
	}

	if len(stored) > 0 {
		if err := s.events.WriteEvents(r.Context(), stored); err != nil {
			logger.Warn("Failed to record scan events", logger.String("owner", owner), logger.ErrorField(err))
		}
	}

	respondWithJSON(w, http.StatusOK, scanResponse{
		Scanned: len(ruleList),
		Fired:   len(events),
		Results: results,
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	filter := storage.EventFilter{
		Owner:  owner,
		Symbol: r.URL.Query().Get("symbol"),
		Limit:  50,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}

	history, err := s.events.GetEvents(r.Context(), filter)
	if err != nil {
		logger.Error("Failed to query event history", logger.String("owner", owner), logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to query alerts")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"owner":  owner,
		"alerts": history,
		"count":  len(history),
	})
}

// isValidationError reports whether the error stems from rejected rule input
func isValidationError(err error) bool {
	return errors.Is(err, models.ErrInvalidSymbol) ||
		errors.Is(err, models.ErrInvalidPrice) ||
		errors.Is(err, models.ErrInvalidBounds) ||
		errors.Is(err, models.ErrNegativeBound) ||
		errors.Is(err, models.ErrInvalidVolume) ||
		errors.Is(err, models.ErrInvalidChannel)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
