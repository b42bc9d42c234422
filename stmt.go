package ygggo_graph

import (
	"context"
	"fmt"
)

// Statement is a prepared statement owned by one Conn. Like the Conn itself
// it is not safe for concurrent use. All declared parameters must be bound
// before Execute.
type Statement struct {
	conn   *Conn
	inner  EngineStatement
	bound  map[string]bool
	closed bool
}

func newStatement(c *Conn, inner EngineStatement) *Statement {
	bound := make(map[string]bool, len(inner.Parameters()))
	for _, name := range inner.Parameters() {
		bound[name] = false
	}
	return &Statement{conn: c, inner: inner, bound: bound}
}

// Parameters returns the names of the statement's declared parameters.
func (s *Statement) Parameters() []string {
	return s.inner.Parameters()
}

// Bind attaches value to the named parameter. Binding a name the statement
// does not declare fails with ErrBindFailed.
func (s *Statement) Bind(name string, value any) error {
	if s.closed {
		return newError(ErrBindFailed, OpBind, ErrConnClosed)
	}
	if _, ok := s.bound[name]; !ok {
		gerr := &Error{
			Op:       OpBind,
			Category: CategoryArgument,
			Message:  fmt.Sprintf("unknown parameter %q", name),
			kind:     ErrBindFailed,
		}
		s.conn.recordError(gerr)
		return gerr
	}
	if err := s.inner.Bind(name, value); err != nil {
		gerr := newError(ErrBindFailed, OpBind, err)
		s.conn.recordError(gerr)
		return gerr
	}
	s.bound[name] = true
	return nil
}

// Execute runs the statement under the same busy/result-liveness discipline
// as Conn.Query. Executing with unbound parameters fails with
// ErrExecuteFailed before the engine is touched.
func (s *Statement) Execute(ctx context.Context) (*Result, error) {
	if s.closed {
		return nil, newError(ErrExecuteFailed, OpExecute, ErrConnClosed)
	}
	for name, ok := range s.bound {
		if !ok {
			gerr := &Error{
				Op:       OpExecute,
				Category: CategoryArgument,
				Message:  fmt.Sprintf("parameter %q not bound", name),
				kind:     ErrExecuteFailed,
			}
			s.conn.recordError(gerr)
			return nil, gerr
		}
	}
	return s.conn.executeStatement(ctx, s)
}

// Close releases the statement. Idempotent.
func (s *Statement) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.inner.Close()
}
