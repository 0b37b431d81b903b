//go:build integration

// Run with:
//
//	go test -tags integration -v ./internal/store/...
//
// Requires Docker (for testcontainers-go) and a reachable Docker socket.
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/monitoring/pipeline/internal/codec"
	"github.com/monitoring/pipeline/internal/store"
)

// schema mirrors migrations/0001_init.sql's metrics and alerts tables.
// The repository ships that file as a reference for whatever migration
// runner the deployment already uses, so the test applies it directly
// rather than shelling out to one.
const schema = `
CREATE TABLE IF NOT EXISTS metrics (
    id            BIGSERIAL PRIMARY KEY,
    service_name  TEXT NOT NULL,
    metric_type   TEXT NOT NULL,
    metric_value  DOUBLE PRECISION NOT NULL,
    unit          TEXT,
    timestamp     TIMESTAMPTZ NOT NULL,
    hostname      TEXT,
    environment   TEXT,
    version       TEXT,
    tags          TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
    id                BIGSERIAL PRIMARY KEY,
    alert_id          VARCHAR(64) NOT NULL UNIQUE,
    service_name      TEXT NOT NULL,
    alert_type        TEXT NOT NULL,
    severity          TEXT NOT NULL,
    status            TEXT NOT NULL,
    message           TEXT NOT NULL,
    description       TEXT,
    threshold_value   DOUBLE PRECISION NOT NULL,
    current_value     DOUBLE PRECISION NOT NULL,
    triggered_at      TIMESTAMPTZ NOT NULL,
    resolved_at       TIMESTAMPTZ,
    duration_seconds  BIGINT,
    hostname          TEXT,
    environment       TEXT,
    metadata          TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// setupDB starts a PostgreSQL container, applies the schema, and returns a
// pgxpool. Container and pool are released through t.Cleanup.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcpostgres.WithDatabase("monitoring_test"),
		tcpostgres.WithUsername("monitoring"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := store.Connect(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)
	return pool
}

func testMetric() *codec.MetricEvent {
	return &codec.MetricEvent{
		EventID:     "evt-1",
		ServiceName: "payments-api",
		MetricType:  codec.MetricCPU,
		MetricValue: 87.5,
		Timestamp:   codec.NewWireTime(time.Now()),
		Unit:        "percent",
		Hostname:    "host-1",
		Environment: codec.EnvProduction,
		Tags:        map[string]string{"region": "us-east-1"},
	}
}

func testAlert() *codec.AlertEvent {
	return &codec.AlertEvent{
		AlertID:        "alert-1",
		ServiceName:    "payments-api",
		AlertType:      codec.AlertType(codec.MetricCPU, codec.SeverityHigh),
		Severity:       codec.SeverityHigh,
		Status:         codec.StatusActive,
		Message:        "CPU usage above threshold",
		ThresholdValue: 80,
		CurrentValue:   87.5,
		TriggeredAt:    codec.NewWireTime(time.Now()),
		Hostname:       "host-1",
		Environment:    codec.EnvProduction,
	}
}

func TestMetricStoreInsert(t *testing.T) {
	pool := setupDB(t)
	ms := store.NewMetricStore(pool)
	ctx := context.Background()

	require.NoError(t, ms.Insert(ctx, testMetric()))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM metrics WHERE service_name = $1", "payments-api").Scan(&count))
	require.Equal(t, 1, count)
}

func TestAlertStoreInsertTriggeredIsIdempotent(t *testing.T) {
	pool := setupDB(t)
	as := store.NewAlertStore(pool)
	ctx := context.Background()

	a := testAlert()
	require.NoError(t, as.InsertTriggered(ctx, a))
	// A second insert of the same alert_id must not error (§7 idempotent
	// replay after a crash between publish and ack).
	require.NoError(t, as.InsertTriggered(ctx, a))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM alerts WHERE alert_id = $1", a.AlertID).Scan(&count))
	require.Equal(t, 1, count)
}

func TestAlertStoreResolve(t *testing.T) {
	pool := setupDB(t)
	as := store.NewAlertStore(pool)
	ctx := context.Background()

	a := testAlert()
	require.NoError(t, as.InsertTriggered(ctx, a))

	resolvedAt := codec.NewWireTime(time.Now())
	duration := int64(120)
	a.Status = codec.StatusResolved
	a.ResolvedAt = &resolvedAt
	a.DurationSeconds = &duration
	a.CurrentValue = 42

	require.NoError(t, as.Resolve(ctx, a))

	var status string
	var currentValue float64
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status, current_value FROM alerts WHERE alert_id = $1", a.AlertID,
	).Scan(&status, &currentValue))
	require.Equal(t, string(codec.StatusResolved), status)
	require.Equal(t, 42.0, currentValue)
}

func TestAlertStoreResolveMissingRow(t *testing.T) {
	pool := setupDB(t)
	as := store.NewAlertStore(pool)
	ctx := context.Background()

	a := testAlert()
	a.AlertID = "does-not-exist"
	resolvedAt := codec.NewWireTime(time.Now())
	duration := int64(5)
	a.ResolvedAt = &resolvedAt
	a.DurationSeconds = &duration

	err := as.Resolve(ctx, a)
	require.Error(t, err)
}
