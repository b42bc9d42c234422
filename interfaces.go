package ygggo_graph

import (
	"context"
	"time"
)

// GraphPool is the downstream-facing pool surface. Mock pools used in
// caller tests implement the same interface as the real one.
type GraphPool interface {
	Acquire(ctx context.Context) (*Conn, error)
	Release(conn *Conn)
	WithConn(ctx context.Context, fn func(*Conn) error) error
	WithinTx(ctx context.Context, fn func(*Tx) error) error

	GetStats() Stats
	CleanupIdle(maxIdle time.Duration) int
	HealthCheckAll(ctx context.Context) error

	Close() error
}

// Compile-time conformance check.
var _ GraphPool = (*Pool)(nil)
