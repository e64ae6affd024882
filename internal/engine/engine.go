package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orsela/stock-alerts-agent/internal/models"
	"github.com/orsela/stock-alerts-agent/internal/quotes"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

// DefaultCooldownWindow is the minimum elapsed time between two
// notifications for the same rule identity
const DefaultCooldownWindow = 60 * time.Minute

var (
	rulesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rules_evaluated_total",
			Help: "Total number of rules evaluated, by outcome",
		},
		[]string{"outcome"}, // "fired", "suppressed", "no_trigger", "skipped", "unavailable", "invalid"
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_pass_duration_seconds",
			Help:    "Duration of a full evaluation pass in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
	)
)

// Engine evaluates a rule set against fresh quotes and decides which
// notifications to fire, enforcing a per-rule cooldown window.
//
// Evaluation is deterministic given a fixed rule list, fixed quotes and a
// fixed now. At most one event is emitted per rule per pass, rules are
// never mutated, and the only state written is the cooldown tracker's.
type Engine struct {
	tracker CooldownTracker
	window  time.Duration
}

// NewEngine creates an evaluation engine with the given cooldown window
func NewEngine(tracker CooldownTracker, window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return &Engine{
		tracker: tracker,
		window:  window,
	}
}

// CooldownWindow returns the configured cooldown window
func (e *Engine) CooldownWindow() time.Duration {
	return e.window
}

// Evaluate runs one pass over the owner's rules in input order and returns
// the notification events to deliver. A fetch failure or malformed rule
// never aborts the pass; the rule is skipped and evaluation continues.
func (e *Engine) Evaluate(ctx context.Context, owner string, ruleList []models.Rule, provider quotes.Provider, now time.Time) []models.NotificationEvent {
	start := time.Now()
	defer func() {
		passDuration.Observe(time.Since(start).Seconds())
	}()

	events := make([]models.NotificationEvent, 0)

	for i := range ruleList {
		rule := ruleList[i]

		if !rule.Active {
			rulesEvaluated.WithLabelValues("skipped").Inc()
			continue
		}

		if strings.TrimSpace(rule.Symbol) == "" {
			rulesEvaluated.WithLabelValues("invalid").Inc()
			logger.Warn("Rejecting malformed rule",
				logger.String("owner", owner),
				logger.Int("position", i),
				logger.ErrorField(models.ErrInvalidSymbol),
			)
			continue
		}

		quote, err := provider.Fetch(ctx, rule.Symbol)
		if err != nil {
			// Soft failure: a missing quote is expected and transient.
			rulesEvaluated.WithLabelValues("unavailable").Inc()
			logger.Debug("Skipping rule, quote unavailable",
				logger.String("owner", owner),
				logger.String("symbol", rule.Symbol),
				logger.ErrorField(err),
			)
			continue
		}

		if !rule.RangeSatisfied(quote.Price) || !rule.VolumeSatisfied(quote.Volume) {
			// Leaving the trigger condition resets nothing; the rule
			// simply stops firing.
			rulesEvaluated.WithLabelValues("no_trigger").Inc()
			continue
		}

		identity := models.RuleIdentity(owner, rule.Symbol)

		lastFired, found, err := e.tracker.LastFired(ctx, identity)
		if err != nil {
			rulesEvaluated.WithLabelValues("suppressed").Inc()
			logger.Warn("Cooldown lookup failed, suppressing to avoid repeat notifications",
				logger.String("identity", identity),
				logger.ErrorField(err),
			)
			continue
		}
		if found && now.Sub(lastFired) < e.window {
			rulesEvaluated.WithLabelValues("suppressed").Inc()
			logger.Debug("Trigger suppressed by cooldown",
				logger.String("identity", identity),
				logger.Time("last_fired", lastFired),
				logger.Duration("window", e.window),
			)
			continue
		}

		// The cooldown write counts from the firing decision, not from
		// delivery: a failed delivery still consumes the window.
		if err := e.tracker.RecordFired(ctx, identity, now); err != nil {
			logger.Warn("Failed to record cooldown",
				logger.String("identity", identity),
				logger.ErrorField(err),
			)
		}

		event := models.NotificationEvent{
			ID:        uuid.New().String(),
			Owner:     owner,
			Symbol:    rule.Symbol,
			Quote:     *quote,
			Condition: describeCondition(&rule, quote),
			Channels:  append([]models.Channel(nil), rule.Channels...),
			Timestamp: now,
		}

		rulesEvaluated.WithLabelValues("fired").Inc()
		logger.Info("Rule fired",
			logger.String("owner", owner),
			logger.String("symbol", rule.Symbol),
			logger.Float64("price", quote.Price),
			logger.String("event_id", event.ID),
		)

		events = append(events, event)
	}

	return events
}

// describeCondition builds the human-readable trigger description carried
// by a notification event
func describeCondition(rule *models.Rule, quote *models.Quote) string {
	var b strings.Builder

	switch {
	case rule.MinPrice > 0 && rule.MaxPrice > 0:
		fmt.Fprintf(&b, "%s at %.2f is inside range [%.2f, %.2f]", rule.Symbol, quote.Price, rule.MinPrice, rule.MaxPrice)
	case rule.MinPrice > 0:
		fmt.Fprintf(&b, "%s at %.2f is at or above %.2f", rule.Symbol, quote.Price, rule.MinPrice)
	case rule.MaxPrice > 0:
		fmt.Fprintf(&b, "%s at %.2f is at or below %.2f", rule.Symbol, quote.Price, rule.MaxPrice)
	default:
		fmt.Fprintf(&b, "%s at %.2f", rule.Symbol, quote.Price)
	}

	fmt.Fprintf(&b, " (%+.2f%% vs previous close)", quote.PercentChange)

	if rule.MinVolume > 0 {
		fmt.Fprintf(&b, ", volume %d >= %d", quote.Volume, rule.MinVolume)
	}

	// Target distance is informational only, never part of the trigger.
	if rule.TargetPrice > 0 {
		distance := quote.Price - rule.TargetPrice
		fmt.Fprintf(&b, "; %.2f from target %.2f", distance, rule.TargetPrice)
	}

	return b.String()
}
