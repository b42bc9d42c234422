package ygggo_graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Op identifies which connection operation produced an error.
type Op string

const (
	OpQuery    Op = "query"
	OpPrepare  Op = "prepare"
	OpBind     Op = "bind"
	OpExecute  Op = "execute"
	OpBegin    Op = "begin"
	OpCommit   Op = "commit"
	OpRollback Op = "rollback"
	OpConfig   Op = "config"
	OpConnect  Op = "connect"
)

// Category is the coarse, best-effort classification of an engine failure.
type Category string

const (
	CategoryArgument    Category = "argument"
	CategoryConstraint  Category = "constraint"
	CategoryTransaction Category = "transaction"
	CategoryTimeout     Category = "timeout"
	CategoryInterrupt   Category = "interrupt"
	CategoryUnknown     Category = "unknown"
)

// Sentinel error kinds surfaced to callers. Every classified *Error unwraps
// to exactly one of these, so errors.Is works across the whole taxonomy.
var (
	ErrBusy              = errors.New("connection busy: previous result still open")
	ErrQueryFailed       = errors.New("query failed")
	ErrPrepareFailed     = errors.New("prepare failed")
	ErrBindFailed        = errors.New("bind failed")
	ErrExecuteFailed     = errors.New("execute failed")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrConnFailed        = errors.New("connection in failed state")
	ErrConnClosed        = errors.New("connection closed")
	ErrConnectFailed     = errors.New("connect failed")
	ErrConfigFailed      = errors.New("config failed")
	ErrPoolExhausted     = errors.New("pool exhausted")
	ErrPoolClosed        = errors.New("pool closed")
)

// Error is the structured error record attached to a Connection after a
// failed operation. Message is an owned copy, independent of any
// engine-owned buffer.
type Error struct {
	Op       Op
	Category Category
	Message  string

	kind error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap exposes the sentinel kind for errors.Is matching.
func (e *Error) Unwrap() error { return e.kind }

// newError builds a classified record from a raw engine error.
func newError(kind error, op Op, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Op: op, Category: classify(err), Message: msg, kind: kind}
}

// protocolError builds a transaction-protocol violation record.
func protocolError(op Op, msg string) *Error {
	return &Error{Op: op, Category: CategoryTransaction, Message: msg, kind: ErrTransactionFailed}
}

// classify maps a raw failure to a Category. Heuristic by design: the engine
// is opaque, so the native error kind and message keywords are all there is.
// Never fails; anything unrecognized is CategoryUnknown.
func classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CategoryInterrupt
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage infers a Category from an engine error message.
func ClassifyMessage(msg string) Category {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "constraint", "duplicate", "unique", "violat"):
		return CategoryConstraint
	case containsAny(m, "timeout", "timed out", "deadline", "budget exceeded"):
		return CategoryTimeout
	case containsAny(m, "interrupt", "cancel"):
		return CategoryInterrupt
	case containsAny(m, "transaction", "commit", "rollback"):
		return CategoryTransaction
	case containsAny(m, "parameter", "argument", "type mismatch", "invalid", "malformed", "bind"):
		return CategoryArgument
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
