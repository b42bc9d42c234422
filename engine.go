package ygggo_graph

import "context"

// Database is the handle to an already-opened embedded graph engine.
// It is shared read-only by every pooled connection: the pool references it,
// never copies or closes it. Implementations must be safe for concurrent
// OpenConnection calls.
type Database interface {
	// OpenConnection obtains a fresh raw connection handle from the engine.
	OpenConnection(ctx context.Context) (EngineConn, error)

	// Close releases the engine handle. Owned by whoever opened the
	// database, not by the pool.
	Close() error
}

// EngineConn is one raw engine connection handle. Handles are NOT safe for
// concurrent use; Conn enforces exclusive ownership on top of this interface.
type EngineConn interface {
	// Execute submits a query string and returns an iterable result.
	Execute(ctx context.Context, query string) (EngineResult, error)

	// Prepare compiles a query with named parameters for later execution.
	Prepare(ctx context.Context, query string) (EngineStatement, error)

	// Transaction control. The engine reports protocol violations
	// (nested begin, commit without begin) as errors.
	BeginTransaction(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Pass-through configuration.
	SetTimeout(ms uint64) error
	SetMaxThreads(n uint64) error
	MaxThreads() (uint64, error)

	Close() error
}

// EngineStatement is a prepared statement bound to one EngineConn.
type EngineStatement interface {
	// Parameters returns the names of all parameters the statement expects,
	// without the leading '$'.
	Parameters() []string

	// Bind attaches a typed value to a named parameter.
	Bind(name string, value any) error

	// Execute runs the statement with the currently bound parameters.
	Execute(ctx context.Context) (EngineResult, error)

	Close() error
}

// EngineResult iterates a query result row by row. A result keeps its
// EngineConn busy until closed; Conn tracks that liveness.
type EngineResult interface {
	// Next returns the next row, or ok=false at the end of the result.
	Next() (values []any, ok bool, err error)

	// Columns returns the column names of the result.
	Columns() []string

	Close() error
}
