package ygggo_graph

// Result is a query result bound 1:1 to the Conn that produced it. The Conn
// stays busy until Close is called; a second query before that fails with
// ErrBusy. Liveness is an explicit sub-state on the Conn, not something left
// to garbage-collection timing.
type Result struct {
	conn   *Conn
	inner  EngineResult
	cur    []any
	err    error
	closed bool
}

// Next advances to the next row. It returns false at the end of the result
// or on iteration error; check Err afterwards.
func (r *Result) Next() bool {
	if r == nil || r.closed || r.err != nil {
		return false
	}
	values, ok, err := r.inner.Next()
	if err != nil {
		r.err = err
		return false
	}
	if !ok {
		return false
	}
	r.cur = values
	return true
}

// Values returns the row produced by the last successful Next call.
func (r *Result) Values() []any { return r.cur }

// Columns returns the column names of the result.
func (r *Result) Columns() []string {
	if r == nil || r.inner == nil {
		return nil
	}
	return r.inner.Columns()
}

// Err returns the iteration error, if any.
func (r *Result) Err() error { return r.err }

// Close releases the result and returns its Conn to the idle state.
// Idempotent.
func (r *Result) Close() error {
	if r == nil || r.closed {
		return nil
	}
	r.closed = true
	err := r.inner.Close()
	if r.conn != nil {
		r.conn.resultClosed(r)
	}
	return err
}

// drainAndClose consumes any remaining rows and closes. Used by helpers that
// run statements for their side effects.
func (r *Result) drainAndClose() error {
	for r.Next() {
	}
	err := r.Err()
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return err
}
