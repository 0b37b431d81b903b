// Package store persists metric history and alert history (§6) via pgx.
// Both stores are append-mostly: alerts gets exactly one update, the
// resolution of the row matching an alertId.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/monitoring/pipeline/internal/codec"
)

// Connect opens a pgx pool against dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// MetricStore appends rows to the metrics table.
type MetricStore struct {
	pool *pgxpool.Pool
}

func NewMetricStore(pool *pgxpool.Pool) *MetricStore { return &MetricStore{pool: pool} }

// Insert persists one MetricEvent. Errors here are reported to the caller
// (the Aggregator) which logs and degrades to persisted=false — they must
// never propagate to the Alert Engine pipeline (§4.6).
func (s *MetricStore) Insert(ctx context.Context, m *codec.MetricEvent) error {
	var tagsJSON []byte
	if len(m.Tags) > 0 {
		var err error
		tagsJSON, err = json.Marshal(m.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO metrics
			(service_name, metric_type, metric_value, unit, timestamp,
			 hostname, environment, version, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`,
		m.ServiceName, string(m.MetricType), m.MetricValue, m.Unit,
		m.Timestamp.Time(), m.Hostname, string(m.Environment), m.Version, tagsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert metric row: %w", err)
	}
	return nil
}

// AlertStore appends and later updates rows in the alerts table.
type AlertStore struct {
	pool *pgxpool.Pool
}

func NewAlertStore(pool *pgxpool.Pool) *AlertStore { return &AlertStore{pool: pool} }

// uniqueViolation reports whether err is a postgres unique-constraint
// violation (SQLSTATE 23505), which §7 treats as idempotent success for
// alerts.alert_id.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// InsertTriggered appends a new ACTIVE alert row. A unique-index violation
// on alert_id is treated as success (idempotent re-persist, §7) since it
// means a prior crash already wrote this exact row.
func (s *AlertStore) InsertTriggered(ctx context.Context, a *codec.AlertEvent) error {
	var metadataJSON []byte
	if len(a.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts
			(alert_id, service_name, alert_type, severity, status, message,
			 description, threshold_value, current_value, triggered_at,
			 hostname, environment, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
	`,
		a.AlertID, a.ServiceName, a.AlertType, string(a.Severity), string(a.Status),
		a.Message, a.Description, a.ThresholdValue, a.CurrentValue, a.TriggeredAt.Time(),
		a.Hostname, string(a.Environment), metadataJSON,
	)
	if err != nil && !uniqueViolation(err) {
		return fmt.Errorf("insert alert row: %w", err)
	}
	return nil
}

// Resolve updates the single row matching alertId: status, resolvedAt, and
// durationSeconds. This is the only update ever applied to an alerts row.
func (s *AlertStore) Resolve(ctx context.Context, a *codec.AlertEvent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts
		SET status = $1, resolved_at = $2, duration_seconds = $3, current_value = $4
		WHERE alert_id = $5
	`, string(a.Status), a.ResolvedAt.Time(), *a.DurationSeconds, a.CurrentValue, a.AlertID)
	if err != nil {
		return fmt.Errorf("resolve alert row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resolve alert row: no row for alert_id %s", a.AlertID)
	}
	return nil
}
