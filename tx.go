package ygggo_graph

import "context"

// Tx scopes query execution to the active transaction of one acquired
// connection. It is only valid inside a WithinTx callback.
type Tx struct {
	conn *Conn
}

// Exec runs a statement for its side effects, draining and closing the
// result so the connection stays usable for the next statement.
func (tx *Tx) Exec(ctx context.Context, query string) error {
	r, err := tx.conn.Query(ctx, query)
	if err != nil {
		return err
	}
	return r.drainAndClose()
}

// Query runs a statement and returns its result. The result must be closed
// before the next statement in the transaction.
func (tx *Tx) Query(ctx context.Context, query string) (*Result, error) {
	return tx.conn.Query(ctx, query)
}

// Conn exposes the underlying connection for error introspection.
func (tx *Tx) Conn() *Conn { return tx.conn }

// WithinTx acquires a connection, begins a transaction, runs fn, and commits
// on success or rolls back on failure. The connection is released on every
// exit path, panics included. fn's own error propagates unless the rollback
// it triggered fails, in which case the rollback failure surfaces instead.
//
// Attempts whose failure classifies as transient (timeout) are retried under
// the pool's RetryPolicy; the default policy makes a single attempt.
func (p *Pool) WithinTx(ctx context.Context, fn func(*Tx) error) error {
	op := func() error {
		conn, err := p.Acquire(ctx)
		if err != nil {
			return err
		}
		defer p.Release(conn)
		return runTx(ctx, conn, fn)
	}
	return retryWithPolicy(ctx, p.retry, op)
}

func runTx(ctx context.Context, conn *Conn, fn func(*Tx) error) error {
	if err := conn.BeginTransaction(ctx); err != nil {
		return err
	}
	// A panicking fn must not leave the transaction dangling on an otherwise
	// reusable connection.
	defer func() {
		if conn.InTransaction() {
			_ = conn.Rollback(ctx)
		}
	}()
	if err := fn(&Tx{conn: conn}); err != nil {
		if rbErr := conn.Rollback(ctx); rbErr != nil {
			return rbErr
		}
		return err
	}
	// A failed commit already terminated the transaction flag and moved the
	// connection to the failed state; there is nothing left to roll back.
	return conn.Commit(ctx)
}
