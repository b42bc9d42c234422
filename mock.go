package ygggo_graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemDatabase is an in-memory engine implementing the Database interface.
// It backs the test suite and lets downstream users test pool behavior
// without a real engine, the same role a mock driver plays for a SQL pool.
//
// It speaks a deliberately tiny command language:
//
//	RETURN <literal>        one row containing the literal
//	PUT <key> <value>       upsert
//	INSERT <key> <value>    insert, duplicate key is a constraint violation
//	GET <key>               one row with the value, or no rows
//	DELETE <key>            delete
//
// Prepared statements may use $name placeholders in place of any token.
// Transactions stage writes in a per-connection overlay that becomes visible
// to other connections only on commit.
type MemDatabase struct {
	mu       sync.Mutex
	data     map[string]string
	failNext map[string]error
	live     int
	closed   bool
}

// NewMemDatabase creates an empty in-memory engine.
func NewMemDatabase() *MemDatabase {
	return &MemDatabase{
		data:     make(map[string]string),
		failNext: make(map[string]error),
	}
}

// FailNext arranges for the next engine call of the given kind to fail with
// err. Kinds: connect, execute, prepare, begin, commit, rollback, config.
func (db *MemDatabase) FailNext(kind string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failNext[kind] = err
}

func (db *MemDatabase) takeFailure(kind string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := db.failNext[kind]
	if err != nil {
		delete(db.failNext, kind)
	}
	return err
}

// LiveConnections reports how many engine connections are currently open.
func (db *MemDatabase) LiveConnections() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.live
}

// OpenConnection implements Database.
func (db *MemDatabase) OpenConnection(ctx context.Context) (EngineConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := db.takeFailure("connect"); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, fmt.Errorf("database closed")
	}
	db.live++
	return &memConn{db: db, maxThreads: 4}, nil
}

// Close implements Database.
func (db *MemDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

type memConn struct {
	db         *MemDatabase
	inTx       bool
	staged     map[string]*string // nil entry = staged delete
	timeoutMS  uint64
	maxThreads uint64
	closed     bool
}

func (c *memConn) Execute(ctx context.Context, query string) (EngineResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed {
		return nil, fmt.Errorf("connection handle closed")
	}
	if err := c.db.takeFailure("execute"); err != nil {
		return nil, err
	}
	return c.run(strings.Fields(query))
}

func (c *memConn) Prepare(ctx context.Context, query string) (EngineStatement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed {
		return nil, fmt.Errorf("connection handle closed")
	}
	if err := c.db.takeFailure("prepare"); err != nil {
		return nil, err
	}
	tokens := strings.Fields(query)
	if len(tokens) == 0 || !knownCommand(tokens[0]) {
		return nil, fmt.Errorf("syntax error in query %q", query)
	}
	st := &memStmt{conn: c, tokens: tokens, values: make(map[string]string)}
	for _, tok := range tokens[1:] {
		if name, ok := strings.CutPrefix(tok, "$"); ok {
			st.params = append(st.params, name)
		}
	}
	return st, nil
}

func (c *memConn) BeginTransaction(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.db.takeFailure("begin"); err != nil {
		return err
	}
	if c.inTx {
		return fmt.Errorf("transaction already active")
	}
	c.inTx = true
	c.staged = make(map[string]*string)
	return nil
}

func (c *memConn) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.inTx {
		return fmt.Errorf("no active transaction")
	}
	staged := c.staged
	c.inTx = false
	c.staged = nil
	if err := c.db.takeFailure("commit"); err != nil {
		// Injected failure aborts the transaction: staged writes are lost.
		return err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	for k, v := range staged {
		if v == nil {
			delete(c.db.data, k)
		} else {
			c.db.data[k] = *v
		}
	}
	return nil
}

func (c *memConn) Rollback(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.inTx {
		return fmt.Errorf("no active transaction")
	}
	c.inTx = false
	c.staged = nil
	return c.db.takeFailure("rollback")
}

func (c *memConn) SetTimeout(ms uint64) error {
	if err := c.db.takeFailure("config"); err != nil {
		return err
	}
	c.timeoutMS = ms
	return nil
}

func (c *memConn) SetMaxThreads(n uint64) error {
	if err := c.db.takeFailure("config"); err != nil {
		return err
	}
	c.maxThreads = n
	return nil
}

func (c *memConn) MaxThreads() (uint64, error) {
	if err := c.db.takeFailure("config"); err != nil {
		return 0, err
	}
	return c.maxThreads, nil
}

func (c *memConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.db.mu.Lock()
	c.db.live--
	c.db.mu.Unlock()
	return nil
}

func knownCommand(tok string) bool {
	switch strings.ToUpper(tok) {
	case "RETURN", "PUT", "INSERT", "GET", "DELETE":
		return true
	}
	return false
}

// run interprets a fully-substituted token list.
func (c *memConn) run(tokens []string) (EngineResult, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("syntax error in query %q", "")
	}
	for _, tok := range tokens[1:] {
		if strings.HasPrefix(tok, "$") {
			return nil, fmt.Errorf("parameter %s not bound", tok)
		}
	}
	switch strings.ToUpper(tokens[0]) {
	case "RETURN":
		if len(tokens) < 2 {
			return nil, fmt.Errorf("invalid argument count for RETURN")
		}
		return &memResult{cols: []string{"result"}, rows: [][]any{{strings.Join(tokens[1:], " ")}}}, nil
	case "PUT":
		if len(tokens) != 3 {
			return nil, fmt.Errorf("invalid argument count for PUT")
		}
		c.write(tokens[1], &tokens[2])
		return &memResult{cols: []string{"ok"}}, nil
	case "INSERT":
		if len(tokens) != 3 {
			return nil, fmt.Errorf("invalid argument count for INSERT")
		}
		if _, exists := c.read(tokens[1]); exists {
			return nil, fmt.Errorf("constraint violation: duplicate key %q", tokens[1])
		}
		c.write(tokens[1], &tokens[2])
		return &memResult{cols: []string{"ok"}}, nil
	case "GET":
		if len(tokens) != 2 {
			return nil, fmt.Errorf("invalid argument count for GET")
		}
		if v, exists := c.read(tokens[1]); exists {
			return &memResult{cols: []string{"value"}, rows: [][]any{{v}}}, nil
		}
		return &memResult{cols: []string{"value"}}, nil
	case "DELETE":
		if len(tokens) != 2 {
			return nil, fmt.Errorf("invalid argument count for DELETE")
		}
		c.write(tokens[1], nil)
		return &memResult{cols: []string{"ok"}}, nil
	default:
		return nil, fmt.Errorf("syntax error in query %q", strings.Join(tokens, " "))
	}
}

func (c *memConn) write(key string, value *string) {
	if c.inTx {
		c.staged[key] = value
		return
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if value == nil {
		delete(c.db.data, key)
	} else {
		c.db.data[key] = *value
	}
}

func (c *memConn) read(key string) (string, bool) {
	if c.inTx {
		if v, ok := c.staged[key]; ok {
			if v == nil {
				return "", false
			}
			return *v, true
		}
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	v, ok := c.db.data[key]
	return v, ok
}

type memStmt struct {
	conn   *memConn
	tokens []string
	params []string
	values map[string]string
	closed bool
}

func (s *memStmt) Parameters() []string { return s.params }

func (s *memStmt) Bind(name string, value any) error {
	found := false
	for _, p := range s.params {
		if p == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("parameter not found: $%s", name)
	}
	s.values[name] = fmt.Sprint(value)
	return nil
}

func (s *memStmt) Execute(ctx context.Context) (EngineResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, fmt.Errorf("statement closed")
	}
	if err := s.conn.db.takeFailure("execute"); err != nil {
		return nil, err
	}
	tokens := make([]string, len(s.tokens))
	for i, tok := range s.tokens {
		if name, ok := strings.CutPrefix(tok, "$"); ok {
			if v, bound := s.values[name]; bound {
				tokens[i] = v
				continue
			}
		}
		tokens[i] = tok
	}
	return s.conn.run(tokens)
}

func (s *memStmt) Close() error {
	s.closed = true
	return nil
}

type memResult struct {
	cols   []string
	rows   [][]any
	i      int
	closed bool
}

func (r *memResult) Next() ([]any, bool, error) {
	if r.closed || r.i >= len(r.rows) {
		return nil, false, nil
	}
	row := r.rows[r.i]
	r.i++
	return row, true, nil
}

func (r *memResult) Columns() []string { return r.cols }

func (r *memResult) Close() error {
	r.closed = true
	return nil
}
