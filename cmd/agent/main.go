package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/orsela/stock-alerts-agent/internal/api"
	"github.com/orsela/stock-alerts-agent/internal/auth"
	"github.com/orsela/stock-alerts-agent/internal/config"
	"github.com/orsela/stock-alerts-agent/internal/engine"
	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/internal/notify"
	"github.com/orsela/stock-alerts-agent/internal/quotes"
	"github.com/orsela/stock-alerts-agent/internal/rules"
	"github.com/orsela/stock-alerts-agent/internal/storage"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting stock alerts agent",
		logger.String("environment", cfg.Environment),
		logger.String("quotes_provider", cfg.Quotes.Provider),
		logger.Duration("cooldown_window", cfg.Engine.CooldownWindow),
		logger.Duration("scan_interval", cfg.Engine.ScanInterval),
	)

	// Stores
	ruleStore, err := rules.NewFileStore(cfg.Store.RulesPath)
	if err != nil {
		logger.Fatal("Failed to open rule store", logger.ErrorField(err))
	}

	userStore, err := auth.NewFileUserStore(cfg.Store.UsersPath, auth.NewBcryptHasher(cfg.Auth.BcryptCost))
	if err != nil {
		logger.Fatal("Failed to open user store", logger.ErrorField(err))
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	if err != nil {
		logger.Fatal("Failed to create token manager", logger.ErrorField(err))
	}

	// Quote provider
	var provider quotes.Provider
	switch cfg.Quotes.Provider {
	case "mock":
		provider = quotes.NewMockProvider()
	default:
		provider = quotes.NewYahooProvider(quotes.YahooConfig{
			BaseURL:        cfg.Quotes.BaseURL,
			RequestTimeout: cfg.Quotes.RequestTimeout,
			Attempts:       cfg.Quotes.FetchAttempts,
			RetryDelay:     cfg.Quotes.RetryDelay,
		})
	}
	provider = quotes.NewCachedProvider(provider, cfg.Quotes.CacheTTL)

	// Cooldown tracker
	var tracker engine.CooldownTracker
	if cfg.Engine.CooldownStore == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
		}
		cancel()
		defer redisClient.Close()

		tracker = engine.NewRedisCooldownTracker(redisClient, 0)
		logger.Info("Using Redis cooldown tracker",
			logger.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)),
		)
	} else {
		tracker = engine.NewMemoryCooldownTracker()
	}

	eng := engine.NewEngine(tracker, cfg.Engine.CooldownWindow)

	// Notification channels
	senders := make([]notify.Sender, 0, 3)
	if cfg.Email.Enabled {
		senders = append(senders, notify.NewEmailSender(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, userStore))
	}
	if cfg.Slack.Enabled {
		senders = append(senders, notify.NewSlackSender(cfg.Slack.WebhookURL, cfg.Slack.Timeout))
	}
	if cfg.Telegram.Enabled {
		senders = append(senders, notify.NewTelegramSender(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			Timeout:  cfg.Telegram.Timeout,
		}))
	}
	notifier := notify.NewMultiplexer(senders...)
	logger.Info("Notification channels configured", logger.Int("channels", len(senders)))

	// Event history
	var events storage.EventStorage
	if cfg.Database.Enabled {
		pgStore, err := storage.NewPostgresEventStorage(
			storage.DatabaseConfig{
				Host:            cfg.Database.Host,
				Port:            cfg.Database.Port,
				User:            cfg.Database.User,
				Password:        cfg.Database.Password,
				Database:        cfg.Database.Database,
				SSLMode:         cfg.Database.SSLMode,
				MaxConnections:  cfg.Database.MaxConnections,
				MaxIdleConns:    cfg.Database.MaxIdleConns,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			},
			storage.WriteConfig{
				BatchSize:  cfg.Database.WriteBatchSize,
				Interval:   cfg.Database.WriteInterval,
				QueueSize:  cfg.Database.WriteQueueSize,
				MaxRetries: cfg.Database.MaxRetries,
				RetryDelay: cfg.Database.RetryDelay,
			},
		)
		if err != nil {
			logger.Fatal("Failed to connect to event storage", logger.ErrorField(err))
		}
		if err := pgStore.Start(); err != nil {
			logger.Fatal("Failed to start event storage", logger.ErrorField(err))
		}
		events = pgStore
	} else {
		events = storage.NewMemoryEventStorage()
	}
	defer events.Close()

	// HTTP API
	server := api.NewServer(ruleStore, userStore, tokens, eng, provider, notifier, events, cfg.Server.RateLimitRPS)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("API server listening", logger.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", logger.ErrorField(err))
		}
	}()

	// Metrics and liveness
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HealthCheckPort),
		Handler: metricsMux,
	}
	go func() {
		logger.Info("Metrics server listening", logger.Int("port", cfg.Server.HealthCheckPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", logger.ErrorField(err))
		}
	}()

	// Background scan loop
	scanCtx, stopScans := context.WithCancel(context.Background())
	scanDone := make(chan struct{})
	go runScanLoop(scanCtx, scanDone, cfg.Engine.ScanInterval, ruleStore, eng, provider, notifier, events)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", logger.String("signal", sig.String()))

	stopScans()
	<-scanDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", logger.ErrorField(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", logger.ErrorField(err))
	}

	logger.Info("Shutdown complete")
}

// runScanLoop evaluates every owner's rules on a fixed interval, delivering
// and recording any notifications that fire
func runScanLoop(
	ctx context.Context,
	done chan<- struct{},
	interval time.Duration,
	ruleStore rules.Store,
	eng *engine.Engine,
	provider quotes.Provider,
	notifier notify.Notifier,
	events storage.EventStorage,
) {
	defer close(done)

	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runScanPass(ctx, ruleStore, eng, provider, notifier, events)
		}
	}
}

func runScanPass(
	ctx context.Context,
	ruleStore rules.Store,
	eng *engine.Engine,
	provider quotes.Provider,
	notifier notify.Notifier,
	events storage.EventStorage,
) {
	owners, err := ruleStore.Owners(ctx)
	if err != nil {
		logger.Error("Failed to list owners for scan", logger.ErrorField(err))
		return
	}

	var fired int
	for _, owner := range owners {
		ruleList, err := ruleStore.Load(ctx, owner)
		if err != nil {
			logger.Error("Failed to load rules for scan",
				logger.String("owner", owner),
				logger.ErrorField(err),
			)
			continue
		}

		ownerEvents := eng.Evaluate(ctx, owner, ruleList, provider, time.Now())
		if len(ownerEvents) == 0 {
			continue
		}
		fired += len(ownerEvents)

		stored := make([]*models.NotificationEvent, 0, len(ownerEvents))
		for i := range ownerEvents {
			notifier.Deliver(ctx, &ownerEvents[i])
			stored = append(stored, &ownerEvents[i])
		}
		if err := events.WriteEvents(ctx, stored); err != nil {
			logger.Warn("Failed to record scan events",
				logger.String("owner", owner),
				logger.ErrorField(err),
			)
		}
	}

	if fired > 0 {
		logger.Info("Scan pass complete",
			logger.Int("owners", len(owners)),
			logger.Int("fired", fired),
		)
	}
}
