package ygggo_graph

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_QueryAndTransactionEvents(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{Capacity: 2})
	ctx := context.Background()

	var buf bytes.Buffer
	pool.EnableLogging(true)
	pool.SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	require.NoError(t, pool.WithinTx(ctx, func(tx *Tx) error {
		return tx.Exec(ctx, "PUT logged yes")
	}))

	out := buf.String()
	assert.Contains(t, out, "graph query executed")
	assert.Contains(t, out, "graph transaction event")
	assert.Contains(t, out, `"status":"success"`)
}

func TestLogging_ErrorsCarryCategory(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{Capacity: 1})
	ctx := context.Background()

	var buf bytes.Buffer
	pool.EnableLogging(true)
	pool.SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	err := pool.WithConn(ctx, func(conn *Conn) error {
		_, qerr := conn.Query(ctx, "FROBNICATE x")
		return qerr
	})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"status":"error"`)
	assert.Contains(t, out, `"category"`)
}

func TestLogging_SlowQueryWarned(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{Capacity: 1})
	ctx := context.Background()

	var buf bytes.Buffer
	pool.EnableLogging(true)
	pool.SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
	pool.SetSlowQueryThreshold(time.Nanosecond)

	require.NoError(t, pool.WithConn(ctx, func(conn *Conn) error {
		return exec(ctx, conn, "RETURN 1")
	}))
	assert.Contains(t, buf.String(), "slow query detected")
}

func TestLogging_DisabledProducesNoOutput(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{Capacity: 1})
	ctx := context.Background()

	var buf bytes.Buffer
	pool.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	// Logging was never enabled; the logger must stay silent.
	require.NoError(t, pool.WithConn(ctx, func(conn *Conn) error {
		return exec(ctx, conn, "RETURN 1")
	}))
	assert.Empty(t, buf.String())
}

func TestMetricsAndTelemetry_TogglesAreSafe(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{Capacity: 2})
	ctx := context.Background()

	// With no SDK installed the global providers are no-ops; the point is
	// that the instrumented paths run without incident.
	pool.EnableMetrics(true)
	pool.EnableTelemetry(true)

	require.NoError(t, pool.WithinTx(ctx, func(tx *Tx) error {
		return tx.Exec(ctx, "PUT measured yes")
	}))
	require.NoError(t, pool.WithConn(ctx, func(conn *Conn) error {
		return exec(ctx, conn, "GET measured")
	}))
	pool.CleanupIdle(0)

	pool.EnableMetrics(false)
	pool.EnableTelemetry(false)
	require.NoError(t, pool.WithConn(ctx, func(conn *Conn) error {
		return exec(ctx, conn, "RETURN 1")
	}))
}

func TestNilPoolObservabilityIsInert(t *testing.T) {
	var p *Pool
	p.EnableLogging(true)
	p.SetLogger(slog.Default())
	p.SetSlowQueryThreshold(time.Second)
	p.EnableMetrics(true)
	p.EnableTelemetry(true)
	p.Release(nil)
	assert.Equal(t, 0, p.CleanupIdle(time.Second))
}
