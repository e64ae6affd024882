package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

var (
	eventWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_history_write_total",
			Help: "Total number of event-history write operations",
		},
		[]string{"status"}, // "success" or "error"
	)

	eventWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_history_write_queue_depth",
			Help: "Current depth of the event-history write queue",
		},
	)
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS notification_events (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	price          DOUBLE PRECISION NOT NULL,
	percent_change DOUBLE PRECISION NOT NULL,
	volume         BIGINT NOT NULL DEFAULT 0,
	condition      TEXT NOT NULL,
	channels       TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_events_owner_time
	ON notification_events (owner, created_at DESC);
`

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresEventStorage persists notification events to Postgres with a
// batched async write queue. Reads go straight to the database.
type PostgresEventStorage struct {
	db          *sql.DB
	writeConfig WriteConfig

	writeQueue chan []*models.NotificationEvent
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// NewPostgresEventStorage connects to Postgres and prepares the schema
func NewPostgresEventStorage(dbConfig DatabaseConfig, writeConfig WriteConfig) (*PostgresEventStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare schema: %w", err)
	}

	if writeConfig.BatchSize <= 0 {
		writeConfig.BatchSize = 100
	}
	if writeConfig.Interval <= 0 {
		writeConfig.Interval = 5 * time.Second
	}
	if writeConfig.QueueSize <= 0 {
		writeConfig.QueueSize = 1000
	}
	if writeConfig.MaxRetries <= 0 {
		writeConfig.MaxRetries = 3
	}
	if writeConfig.RetryDelay <= 0 {
		writeConfig.RetryDelay = time.Second
	}

	storeCtx, storeCancel := context.WithCancel(context.Background())

	s := &PostgresEventStorage{
		db:          db,
		writeConfig: writeConfig,
		writeQueue:  make(chan []*models.NotificationEvent, writeConfig.QueueSize),
		ctx:         storeCtx,
		cancel:      storeCancel,
	}

	logger.Info("Event storage initialized",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return s, nil
}

// Start starts the async write queue processor
func (s *PostgresEventStorage) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("event storage is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.processWriteQueue()

	return nil
}

// Stop drains the queue and stops the processor
func (s *PostgresEventStorage) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	close(s.writeQueue)
	s.wg.Wait()
}

// Close stops the processor and closes the connection
func (s *PostgresEventStorage) Close() error {
	s.Stop()
	return s.db.Close()
}

// WriteEvent writes a single event to storage
func (s *PostgresEventStorage) WriteEvent(ctx context.Context, event *models.NotificationEvent) error {
	return s.WriteEvents(ctx, []*models.NotificationEvent{event})
}

// WriteEvents enqueues events for async writing. When the processor is not
// running the write happens synchronously.
func (s *PostgresEventStorage) WriteEvents(ctx context.Context, events []*models.NotificationEvent) error {
	if len(events) == 0 {
		return nil
	}

	valid := make([]*models.NotificationEvent, 0, len(events))
	for _, event := range events {
		if err := event.Validate(); err != nil {
			logger.Warn("Invalid event, skipping",
				logger.ErrorField(err),
				logger.String("event_id", event.ID),
			)
			continue
		}
		valid = append(valid, event)
	}
	if len(valid) == 0 {
		return nil
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		return s.writeBatch(ctx, valid)
	}

	select {
	case s.writeQueue <- valid:
		eventWriteQueueDepth.Set(float64(len(s.writeQueue)))
		return nil
	default:
		return fmt.Errorf("event write queue is full")
	}
}

// processWriteQueue batches queued events and flushes on size or interval
func (s *PostgresEventStorage) processWriteQueue() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.writeConfig.Interval)
	defer ticker.Stop()

	batch := make([]*models.NotificationEvent, 0, s.writeConfig.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.writeWithRetries(batch)
		batch = batch[:0]
	}

	for {
		select {
		case events, ok := <-s.writeQueue:
			if !ok {
				flush()
				return
			}
			eventWriteQueueDepth.Set(float64(len(s.writeQueue)))
			batch = append(batch, events...)
			if len(batch) >= s.writeConfig.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *PostgresEventStorage) writeWithRetries(batch []*models.NotificationEvent) {
	var err error
	for attempt := 1; attempt <= s.writeConfig.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = s.writeBatch(ctx, batch)
		cancel()
		if err == nil {
			return
		}
		logger.Warn("Event batch write failed",
			logger.ErrorField(err),
			logger.Int("attempt", attempt),
			logger.Int("batch_size", len(batch)),
		)
		time.Sleep(s.writeConfig.RetryDelay)
	}

	logger.Error("Dropping event batch after retries",
		logger.ErrorField(err),
		logger.Int("batch_size", len(batch)),
	)
}

func (s *PostgresEventStorage) writeBatch(ctx context.Context, batch []*models.NotificationEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		eventWriteTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notification_events
			(id, owner, symbol, price, percent_change, volume, condition, channels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		eventWriteTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range batch {
		_, err := stmt.ExecContext(ctx,
			event.ID,
			event.Owner,
			event.Symbol,
			event.Quote.Price,
			event.Quote.PercentChange,
			event.Quote.Volume,
			event.Condition,
			joinChannels(event.Channels),
			event.Timestamp,
		)
		if err != nil {
			eventWriteTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to insert event %s: %w", event.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		eventWriteTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	eventWriteTotal.WithLabelValues("success").Inc()
	return nil
}

// GetEvents retrieves events with filtering options, newest first
func (s *PostgresEventStorage) GetEvents(ctx context.Context, filter EventFilter) ([]*models.NotificationEvent, error) {
	query := `SELECT id, owner, symbol, price, percent_change, volume, condition, channels, created_at
		FROM notification_events WHERE 1=1`
	args := make([]interface{}, 0, 5)

	if filter.Owner != "" {
		args = append(args, filter.Owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}
	if filter.Symbol != "" {
		args = append(args, strings.ToUpper(filter.Symbol))
		query += fmt.Sprintf(" AND symbol = $%d", len(args))
	}
	if !filter.StartTime.IsZero() {
		args = append(args, filter.StartTime)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.EndTime.IsZero() {
		args = append(args, filter.EndTime)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.NotificationEvent, 0)
	for rows.Next() {
		var event models.NotificationEvent
		var channels string
		err := rows.Scan(
			&event.ID,
			&event.Owner,
			&event.Symbol,
			&event.Quote.Price,
			&event.Quote.PercentChange,
			&event.Quote.Volume,
			&event.Condition,
			&channels,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Quote.Symbol = event.Symbol
		event.Channels = splitChannels(channels)
		events = append(events, &event)
	}

	return events, rows.Err()
}

func joinChannels(channels []models.Channel) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = string(ch)
	}
	return strings.Join(parts, ",")
}

func splitChannels(joined string) []models.Channel {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	channels := make([]models.Channel, len(parts))
	for i, p := range parts {
		channels[i] = models.Channel(p)
	}
	return channels
}
