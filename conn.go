package ygggo_graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// livenessQuery is the trivial no-op query used to probe a connection.
const livenessQuery = "RETURN 1"

// ConnState is the operational state of a Conn.
type ConnState int32

const (
	// StateIdle means the connection is ready for the next operation.
	StateIdle ConnState = iota
	// StateBusy means a result produced by this connection is still open.
	StateBusy
	// StateFailed means a protocol violation or unrecoverable engine error
	// occurred; only Recover/Validate may be called until recovery succeeds.
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Conn wraps a single exclusively-owned engine connection handle and its
// state machine. A Conn is not safe for concurrent use by multiple callers;
// the Pool guarantees at most one holder at a time. Internally a mutex
// serializes the state transitions so that pool health machinery and a
// straggling Result.Close cannot race.
type Conn struct {
	id     uuid.UUID
	engine EngineConn
	pool   *Pool // nil for connections created directly via NewConn

	mu        sync.Mutex
	state     ConnState
	inTx      bool
	result    *Result
	lastErr   *Error
	closed    bool
	createdAt time.Time
	lastUsed  time.Time
}

// NewConn opens a standalone connection from db. Pool users never call this;
// Pool.Acquire creates connections on demand.
func NewConn(ctx context.Context, db Database) (*Conn, error) {
	return newConn(ctx, db, nil)
}

func newConn(ctx context.Context, db Database, p *Pool) (*Conn, error) {
	start := time.Now()
	ec, err := db.OpenConnection(ctx)
	p.logConnection(ctx, "open", time.Since(start), err)
	if err != nil {
		return nil, newError(ErrConnectFailed, OpConnect, err)
	}
	now := time.Now()
	return &Conn{
		id:        uuid.New(),
		engine:    ec,
		pool:      p,
		state:     StateIdle,
		createdAt: now,
		lastUsed:  now,
	}, nil
}

// ID returns the connection identity used by pool bookkeeping.
func (c *Conn) ID() uuid.UUID { return c.id }

// Query submits a query string. It fails with ErrBusy while a previous
// result is still open, and with a classified ErrQueryFailed when the engine
// rejects the query. The returned Result keeps the Conn busy until closed.
func (c *Conn) Query(ctx context.Context, query string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.operationalLocked(OpQuery); err != nil {
		return nil, err
	}
	if err := c.busyGuardLocked(OpQuery); err != nil {
		return nil, err
	}
	return c.runQueryLocked(ctx, OpQuery, ErrQueryFailed, query)
}

func (c *Conn) runQueryLocked(ctx context.Context, op Op, kind error, query string) (*Result, error) {
	start := time.Now()
	ctx, span := c.pool.startSpan(ctx, string(op), query)
	res, err := c.engine.Execute(ctx, query)
	d := time.Since(start)
	c.pool.finishSpan(span, err)
	c.pool.logQuery(ctx, string(op), query, d, err)
	c.pool.recordQuery(ctx, string(op), d, err)
	if err != nil {
		gerr := newError(kind, op, err)
		c.lastErr = gerr
		return nil, gerr
	}
	r := &Result{conn: c, inner: res}
	c.result = r
	c.state = StateBusy
	c.lastUsed = time.Now()
	return r, nil
}

// Prepare compiles a statement with named parameters. Same busy discipline
// as Query.
func (c *Conn) Prepare(ctx context.Context, query string) (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.operationalLocked(OpPrepare); err != nil {
		return nil, err
	}
	if err := c.busyGuardLocked(OpPrepare); err != nil {
		return nil, err
	}
	start := time.Now()
	st, err := c.engine.Prepare(ctx, query)
	d := time.Since(start)
	c.pool.logQuery(ctx, "prepare", query, d, err)
	c.pool.recordQuery(ctx, "prepare", d, err)
	if err != nil {
		gerr := newError(ErrPrepareFailed, OpPrepare, err)
		c.lastErr = gerr
		return nil, gerr
	}
	c.lastUsed = time.Now()
	return newStatement(c, st), nil
}

// executeStatement runs a fully-bound prepared statement under the busy
// discipline. Called by Statement.Execute.
func (c *Conn) executeStatement(ctx context.Context, s *Statement) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.operationalLocked(OpExecute); err != nil {
		return nil, err
	}
	if err := c.busyGuardLocked(OpExecute); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := c.pool.startSpan(ctx, "execute", "")
	res, err := s.inner.Execute(ctx)
	d := time.Since(start)
	c.pool.finishSpan(span, err)
	c.pool.logQuery(ctx, "execute", "", d, err)
	c.pool.recordQuery(ctx, "execute", d, err)
	if err != nil {
		gerr := newError(ErrExecuteFailed, OpExecute, err)
		c.lastErr = gerr
		return nil, gerr
	}
	r := &Result{conn: c, inner: res}
	c.result = r
	c.state = StateBusy
	c.lastUsed = time.Now()
	return r, nil
}

// BeginTransaction starts a transaction. Beginning while one is already
// active is a protocol violation: it fails with ErrTransactionFailed and
// forces the Conn into the failed state, requiring Recover.
func (c *Conn) BeginTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.operationalLocked(OpBegin); err != nil {
		return err
	}
	if err := c.busyGuardLocked(OpBegin); err != nil {
		return err
	}
	if c.inTx {
		gerr := protocolError(OpBegin, "nested transaction: a transaction is already active")
		c.lastErr = gerr
		c.state = StateFailed
		c.pool.logTransaction(ctx, "begin", 0, gerr)
		return gerr
	}
	start := time.Now()
	err := c.engine.BeginTransaction(ctx)
	d := time.Since(start)
	c.pool.logTransaction(ctx, "begin", d, err)
	if err != nil {
		gerr := newError(ErrTransactionFailed, OpBegin, err)
		c.lastErr = gerr
		c.state = StateFailed
		return gerr
	}
	c.inTx = true
	c.lastUsed = time.Now()
	return nil
}

// Commit terminates the active transaction. The in-transaction flag is
// cleared even when the engine call fails, so the Conn can never get
// permanently stuck in transaction context; the failure itself is still
// classified, recorded with Op "commit", and forces the failed state.
func (c *Conn) Commit(ctx context.Context) error { return c.endTx(ctx, OpCommit) }

// Rollback terminates the active transaction, with the same force-clear
// semantics as Commit. A recorded failure carries Op "rollback".
func (c *Conn) Rollback(ctx context.Context) error { return c.endTx(ctx, OpRollback) }

func (c *Conn) endTx(ctx context.Context, op Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.operationalLocked(op); err != nil {
		return err
	}
	if !c.inTx {
		gerr := protocolError(op, "no active transaction")
		c.lastErr = gerr
		c.state = StateFailed
		c.pool.logTransaction(ctx, string(op), 0, gerr)
		return gerr
	}
	// Clear the flag before the engine call: a failed commit must not leave
	// the Conn unable to ever begin a transaction again.
	c.inTx = false
	start := time.Now()
	var err error
	if op == OpCommit {
		err = c.engine.Commit(ctx)
	} else {
		err = c.engine.Rollback(ctx)
	}
	d := time.Since(start)
	c.pool.logTransaction(ctx, string(op), d, err)
	c.pool.recordTransaction(ctx, d, err)
	if err != nil {
		gerr := newError(ErrTransactionFailed, op, err)
		c.lastErr = gerr
		c.state = StateFailed
		return gerr
	}
	c.lastUsed = time.Now()
	return nil
}

// SetTimeout sets the engine-side query timeout in milliseconds.
func (c *Conn) SetTimeout(ms uint64) error {
	return c.configOp(func() error { return c.engine.SetTimeout(ms) })
}

// SetMaxThreads sets the engine-side worker thread cap for this connection.
func (c *Conn) SetMaxThreads(n uint64) error {
	return c.configOp(func() error { return c.engine.SetMaxThreads(n) })
}

// MaxThreads reports the engine-side worker thread cap.
func (c *Conn) MaxThreads() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.operationalLocked(OpConfig); err != nil {
		return 0, err
	}
	n, err := c.engine.MaxThreads()
	if err != nil {
		gerr := newError(ErrConfigFailed, OpConfig, err)
		c.lastErr = gerr
		return 0, gerr
	}
	return n, nil
}

func (c *Conn) configOp(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.operationalLocked(OpConfig); err != nil {
		return err
	}
	if err := fn(); err != nil {
		gerr := newError(ErrConfigFailed, OpConfig, err)
		c.lastErr = gerr
		return gerr
	}
	return nil
}

// Validate checks that the connection is usable. A failed connection gets a
// recovery attempt; an idle one is probed with a trivial query; a busy one
// reports ErrBusy without disturbing the open result. Returns nil when the
// connection is healthy afterwards.
func (c *Conn) Validate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return newError(ErrConnFailed, OpConnect, ErrConnClosed)
	}
	switch c.state {
	case StateFailed:
		return c.recoverLocked(ctx)
	case StateBusy:
		return &Error{
			Op:       OpQuery,
			Category: CategoryArgument,
			Message:  "previous result still open",
			kind:     ErrBusy,
		}
	default:
		res, err := c.engine.Execute(ctx, livenessQuery)
		if err != nil {
			gerr := newError(ErrQueryFailed, OpQuery, err)
			c.lastErr = gerr
			return gerr
		}
		_ = res.Close()
		c.lastUsed = time.Now()
		return nil
	}
}

// Recover attempts the explicit failed -> idle transition. It drops any live
// result, rolls back a leftover transaction best-effort, and probes the
// engine; the structured error is cleared only when the probe succeeds.
// Calling Recover on a non-failed connection is a no-op.
func (c *Conn) Recover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return newError(ErrConnFailed, OpConnect, ErrConnClosed)
	}
	if c.state != StateFailed {
		return nil
	}
	return c.recoverLocked(ctx)
}

func (c *Conn) recoverLocked(ctx context.Context) error {
	if c.result != nil {
		c.result.closed = true
		_ = c.result.inner.Close()
		c.result = nil
	}
	if c.inTx {
		_ = c.engine.Rollback(ctx)
		c.inTx = false
	}
	res, err := c.engine.Execute(ctx, livenessQuery)
	if err != nil {
		// Leave the failed state and the recorded error untouched so the
		// caller can still inspect the original failure.
		return &Error{
			Op:       OpConnect,
			Category: CategoryTransaction,
			Message:  fmt.Sprintf("recovery probe failed: %v", err),
			kind:     ErrTransactionFailed,
		}
	}
	_ = res.Close()
	c.state = StateIdle
	c.lastErr = nil
	c.lastUsed = time.Now()
	return nil
}

// LastError returns the most recent structured error, or nil.
func (c *Conn) LastError() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastErrorMessage returns the most recent error message, or "".
func (c *Conn) LastErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Message
}

// ClearError resets the structured error without changing the operational
// state: a failed connection stays failed until recovered.
func (c *Conn) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

// State reports the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InTransaction reports whether a transaction is active.
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

// CreatedAt returns the creation timestamp.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// Close destroys the connection and its engine handle. A pooled connection
// is closed by pool machinery (eviction, teardown), not by callers; callers
// return pooled connections with Pool.Release.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.result != nil {
		c.result.closed = true
		_ = c.result.inner.Close()
		c.result = nil
	}
	return c.engine.Close()
}

// resultClosed is invoked by Result.Close to flip busy back to idle.
func (c *Conn) resultClosed(r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result != r {
		return
	}
	c.result = nil
	if c.state == StateBusy {
		c.state = StateIdle
	}
	c.lastUsed = time.Now()
}

// recordError attaches a structured error produced outside the conn mutex
// (statement-level guards).
func (c *Conn) recordError(gerr *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = gerr
}

// operationalLocked rejects operations on closed or failed connections.
func (c *Conn) operationalLocked(op Op) *Error {
	if c.closed {
		return &Error{Op: op, Category: CategoryUnknown, Message: ErrConnClosed.Error(), kind: ErrConnClosed}
	}
	if c.state == StateFailed {
		return &Error{
			Op:       op,
			Category: CategoryTransaction,
			Message:  "connection in failed state; recover before use",
			kind:     ErrConnFailed,
		}
	}
	return nil
}

// busyGuardLocked enforces the one-live-result rule. The violation is
// recorded like any other operation failure.
func (c *Conn) busyGuardLocked(op Op) *Error {
	if c.result == nil {
		return nil
	}
	gerr := &Error{
		Op:       op,
		Category: CategoryArgument,
		Message:  "previous result still open; close it before the next operation",
		kind:     ErrBusy,
	}
	c.lastErr = gerr
	return gerr
}

// touch refreshes the last-used timestamp. Called by pool acquire/release.
func (c *Conn) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// idleSince returns the last-used timestamp.
func (c *Conn) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}
