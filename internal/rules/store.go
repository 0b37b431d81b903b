package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/monitoring/pipeline/internal/codec"
)

// Store resolves the rules applicable to an incoming metric.
type Store interface {
	// FindApplicable returns all enabled rules matching metricType exactly
	// where serviceName equals either service or the wildcard. Results are
	// ordered service-specific rules before wildcard rules, tie-broken by
	// insertion order (§4.4).
	FindApplicable(ctx context.Context, service string, metricType codec.MetricType) ([]AlertRule, error)
}

// DefaultSeedRules are the three default rules referenced in §6, seeded
// with durations 5, 2, and 3 minutes.
func DefaultSeedRules() []AlertRule {
	return []AlertRule{
		{
			RuleName:           "default-cpu-high",
			ServiceName:        WildcardService,
			MetricType:         codec.MetricCPU,
			ThresholdValue:     80,
			ComparisonOperator: OpGT,
			DurationMinutes:    5,
			Severity:           codec.SeverityHigh,
			Enabled:            true,
			Description:        "CPU usage above 80%",
		},
		{
			RuleName:           "default-memory-critical",
			ServiceName:        WildcardService,
			MetricType:         codec.MetricMemory,
			ThresholdValue:     90,
			ComparisonOperator: OpGT,
			DurationMinutes:    2,
			Severity:           codec.SeverityCritical,
			Enabled:            true,
			Description:        "Memory usage above 90%",
		},
		{
			RuleName:           "default-error-rate-high",
			ServiceName:        WildcardService,
			MetricType:         codec.MetricErrorRate,
			ThresholdValue:     5,
			ComparisonOperator: OpGT,
			DurationMinutes:    3,
			Severity:           codec.SeverityHigh,
			Enabled:            true,
			Description:        "Error rate above 5%",
		},
	}
}

// StaticStore serves a fixed, in-process rule set. Used by tests and by
// deployments that provision rules via config rather than the database.
type StaticStore struct {
	mu    sync.RWMutex
	rules []AlertRule
}

// NewStaticStore builds a StaticStore, assigning insertion order from the
// slice's position.
func NewStaticStore(rules []AlertRule) *StaticStore {
	s := &StaticStore{}
	for _, r := range rules {
		s.add(r)
	}
	return s
}

func (s *StaticStore) add(r AlertRule) {
	r.insertionOrder = len(s.rules)
	s.rules = append(s.rules, r)
}

// Add appends a rule at runtime, e.g. from an operator API.
func (s *StaticStore) Add(r AlertRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(r)
}

func (s *StaticStore) FindApplicable(_ context.Context, service string, metricType codec.MetricType) ([]AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchAndOrder(s.rules, service, metricType), nil
}

// matchAndOrder filters to enabled, metric-matching rules scoped to
// service or the wildcard, then sorts service-specific before wildcard,
// tie-broken by insertion order.
func matchAndOrder(rules []AlertRule, service string, metricType codec.MetricType) []AlertRule {
	var matched []AlertRule
	for _, r := range rules {
		if !r.Enabled || r.MetricType != metricType {
			continue
		}
		if r.ServiceName != service && r.ServiceName != WildcardService {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		iWild := matched[i].ServiceName == WildcardService
		jWild := matched[j].ServiceName == WildcardService
		if iWild != jWild {
			return !iWild // specific (non-wildcard) sorts first
		}
		return matched[i].insertionOrder < matched[j].insertionOrder
	})
	return matched
}

// SQLStore queries the alert_rules table (§6) via pgx.
type SQLStore struct {
	pool *pgxpool.Pool
}

// NewSQLStore wraps an existing pgx pool.
func NewSQLStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

func (s *SQLStore) FindApplicable(ctx context.Context, service string, metricType codec.MetricType) ([]AlertRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rule_name, service_name, metric_type, threshold_value,
		       comparison_operator, duration_minutes, severity, enabled,
		       description
		FROM alert_rules
		WHERE enabled = true
		  AND metric_type = $1
		  AND (service_name = $2 OR service_name = '*')
		ORDER BY (service_name = '*'), id
	`, string(metricType), service)
	if err != nil {
		return nil, fmt.Errorf("query alert_rules: %w", err)
	}
	defer rows.Close()

	var out []AlertRule
	order := 0
	for rows.Next() {
		var r AlertRule
		var mt, op, sev string
		if err := rows.Scan(&r.RuleName, &r.ServiceName, &mt, &r.ThresholdValue,
			&op, &r.DurationMinutes, &sev, &r.Enabled, &r.Description); err != nil {
			return nil, fmt.Errorf("scan alert_rules row: %w", err)
		}
		r.MetricType = codec.MetricType(mt)
		r.ComparisonOperator = ComparisonOperator(op)
		r.Severity = codec.Severity(sev)
		r.insertionOrder = order
		order++
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert_rules rows: %w", err)
	}
	return out, nil
}
