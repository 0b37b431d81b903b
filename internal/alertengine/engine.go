// Package alertengine implements §4.7: for every incoming metric, look up
// applicable rules, evaluate each against cached alert state, and trigger
// or resolve alerts with the cache as the single source of truth for the
// per-(service, alertType) state machine.
//
// Rules are evaluated sequentially within one metric so cache read/write
// stays causally ordered per (service, alertType) (§4.7, §5).
package alertengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/monitoring/pipeline/internal/cache"
	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/metrics"
	"github.com/monitoring/pipeline/internal/rules"
	"github.com/rs/zerolog"
)

// activeAlertTTL is how long a triggered alert's cache entry lives
// (§4.3): 24h, independent of the configured metric cache TTL.
const activeAlertTTL = 24 * time.Hour

// AlertStore is the subset of store.AlertStore the engine needs.
type AlertStore interface {
	InsertTriggered(ctx context.Context, a *codec.AlertEvent) error
	Resolve(ctx context.Context, a *codec.AlertEvent) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Engine orchestrates rule lookup, the alert state machine, persistence,
// and publish for one metric at a time.
type Engine struct {
	cache      *cache.Client
	ruleStore  rules.Store
	alertStore AlertStore
	publish    func(ctx context.Context, key string, value []byte) error
	now        Clock
	logger     zerolog.Logger
}

// New builds an Engine. publish is called with the alerts topic already
// bound so callers don't need to thread the topic name through.
func New(c *cache.Client, ruleStore rules.Store, alertStore AlertStore, publish func(ctx context.Context, key string, value []byte) error, logger zerolog.Logger) *Engine {
	return &Engine{
		cache:      c,
		ruleStore:  ruleStore,
		alertStore: alertStore,
		publish:    publish,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(c Clock) *Engine {
	e.now = c
	return e
}

// Process evaluates every rule applicable to m and drives the per-rule
// state machine (§4.7's pseudocode). An error here means an un-ackable
// condition occurred (RESOLVE's cache delete failing) and the caller must
// not acknowledge the source record (§5).
func (e *Engine) Process(ctx context.Context, m *codec.MetricEvent) error {
	applicable, err := e.ruleStore.FindApplicable(ctx, m.ServiceName, m.MetricType)
	if err != nil {
		return fmt.Errorf("find applicable rules: %w", err)
	}

	for _, rule := range applicable {
		if err := e.processRule(ctx, m, rule); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) processRule(ctx context.Context, m *codec.MetricEvent, rule rules.AlertRule) error {
	alertType := codec.AlertType(rule.MetricType, rule.Severity)
	stateKey := cache.AlertStateKey(m.ServiceName, alertType)

	prior, priorActive, err := e.readAlertState(ctx, stateKey)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", stateKey).Msg("read alert state failed, treating as absent")
	}

	fired := rules.Evaluate(m.MetricValue, rule.ThresholdValue, rule.ComparisonOperator)

	sustained, err := e.gateDuration(ctx, m, rule, alertType, fired)
	if err != nil {
		e.logger.Warn().Err(err).Str("alertType", alertType).Msg("duration gate cache op failed")
	}

	switch {
	case sustained && !priorActive:
		return e.trigger(ctx, m, rule, alertType, stateKey)
	case !fired && priorActive:
		return e.resolve(ctx, m, prior, stateKey)
	default:
		return nil
	}
}

// readAlertState loads the cached AlertEvent for stateKey, if any.
func (e *Engine) readAlertState(ctx context.Context, stateKey string) (*codec.AlertEvent, bool, error) {
	data, ok, err := e.cache.Get(ctx, stateKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	alert, err := codec.DecodeAlertEvent(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode cached alert state: %w", err)
	}
	return alert, alert.IsActive(), nil
}

// gateDuration implements the §9 open question's required resolution:
// TRIGGER only fires once the violating condition has held continuously
// for rule.DurationMinutes. The first-violation timestamp is tracked in
// an auxiliary pending key with TTL 2x the duration window; a
// non-violating sample clears it immediately.
func (e *Engine) gateDuration(ctx context.Context, m *codec.MetricEvent, rule rules.AlertRule, alertType string, fired bool) (bool, error) {
	pendingKey := cache.AlertPendingKey(m.ServiceName, alertType)

	if !fired {
		return false, e.cache.Delete(ctx, pendingKey)
	}

	if rule.DurationMinutes <= 0 {
		return true, nil
	}

	data, ok, err := e.cache.Get(ctx, pendingKey)
	if err != nil {
		return false, err
	}

	window := time.Duration(rule.DurationMinutes) * time.Minute
	now := e.now()

	if !ok {
		firstSeen := codec.NewWireTime(now)
		payload, mErr := firstSeen.MarshalJSON()
		if mErr != nil {
			return false, fmt.Errorf("marshal pending timestamp: %w", mErr)
		}
		_, err := e.cache.Set(ctx, pendingKey, payload, window*2)
		return false, err
	}

	var firstSeen codec.WireTime
	if err := firstSeen.UnmarshalJSON(data); err != nil {
		return false, fmt.Errorf("unmarshal pending timestamp: %w", err)
	}

	return now.Sub(firstSeen.Time()) >= window, nil
}

func (e *Engine) trigger(ctx context.Context, m *codec.MetricEvent, rule rules.AlertRule, alertType, stateKey string) error {
	now := e.now()
	message := fmt.Sprintf("%s %s threshold exceeded: current=%.2f, threshold=%.2f",
		rule.MetricType.DisplayName(), operatorSymbol(rule.ComparisonOperator), m.MetricValue, rule.ThresholdValue)

	alert := &codec.AlertEvent{
		AlertID:        uuid.NewString(),
		ServiceName:    m.ServiceName,
		AlertType:      alertType,
		Severity:       rule.Severity,
		Status:         codec.StatusActive,
		Message:        message,
		Description:    rule.Description,
		ThresholdValue: rule.ThresholdValue,
		CurrentValue:   m.MetricValue,
		TriggeredAt:    codec.NewWireTime(now),
		Hostname:       m.Hostname,
		Environment:    m.Environment,
	}

	data, err := codec.EncodeAlertEvent(alert)
	if err != nil {
		return fmt.Errorf("encode triggered alert: %w", err)
	}

	// Cache write must precede publish so redelivery of m does not
	// re-trigger (§4.7).
	if _, err := e.cache.Set(ctx, stateKey, data, activeAlertTTL); err != nil {
		e.logger.Warn().Err(err).Str("key", stateKey).Msg("cache triggered alert failed, continuing")
	}

	if err := e.alertStore.InsertTriggered(ctx, alert); err != nil {
		// Store write on TRIGGER: log and continue, cache is source of
		// truth (§7).
		e.logger.Error().Err(err).Str("alertId", alert.AlertID).Msg("persist triggered alert failed")
	}

	if err := e.publish(ctx, m.ServiceName, data); err != nil {
		return fmt.Errorf("publish triggered alert: %w", err)
	}

	metrics.AlertsTriggeredTotal.WithLabelValues(string(rule.Severity)).Inc()

	e.logger.Info().
		Str("service", m.ServiceName).
		Str("alertType", alertType).
		Str("alertId", alert.AlertID).
		Float64("value", m.MetricValue).
		Msg("alert triggered")
	return nil
}

func (e *Engine) resolve(ctx context.Context, m *codec.MetricEvent, prior *codec.AlertEvent, stateKey string) error {
	now := e.now()
	resolvedAt := codec.NewWireTime(now)
	duration := int64(resolvedAt.Time().Sub(prior.TriggeredAt.Time()).Seconds())

	prior.Status = codec.StatusResolved
	prior.ResolvedAt = &resolvedAt
	prior.CurrentValue = m.MetricValue
	prior.DurationSeconds = &duration

	// Cache deletion must succeed for correctness of subsequent
	// redeliveries; if it fails, the metric is not acknowledged (§4.7, §5).
	if err := e.cache.Delete(ctx, stateKey); err != nil {
		return fmt.Errorf("delete alert state on resolve: %w", err)
	}

	if err := e.alertStore.Resolve(ctx, prior); err != nil {
		// Persistence errors degrade silently on resolve (§4.7).
		e.logger.Error().Err(err).Str("alertId", prior.AlertID).Msg("persist resolved alert failed")
	}

	data, err := codec.EncodeAlertEvent(prior)
	if err != nil {
		return fmt.Errorf("encode resolved alert: %w", err)
	}

	if err := e.publish(ctx, m.ServiceName, data); err != nil {
		return fmt.Errorf("publish resolved alert: %w", err)
	}

	metrics.AlertsResolvedTotal.WithLabelValues(string(prior.Severity)).Inc()

	e.logger.Info().
		Str("service", m.ServiceName).
		Str("alertType", prior.AlertType).
		Str("alertId", prior.AlertID).
		Int64("durationSeconds", duration).
		Msg("alert resolved")
	return nil
}

func operatorSymbol(op rules.ComparisonOperator) string {
	switch op {
	case rules.OpGT:
		return ">"
	case rules.OpGTE:
		return ">="
	case rules.OpLT:
		return "<"
	case rules.OpLTE:
		return "<="
	case rules.OpEQ:
		return "=="
	default:
		return string(op)
	}
}
