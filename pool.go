package ygggo_graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/metric"
)

// Pool owns a bounded set of connections over one shared Database handle.
// At most one caller holds any given connection at a time; the available and
// in-use sets are reconciled under a single mutex so Stats is always a
// consistent snapshot and cleanup can never race an acquire.
type Pool struct {
	db  Database
	cfg Config

	// slots carries one permit per capacity unit. Holding a permit means
	// holding (or creating) an in-use connection; available connections do
	// not hold permits.
	slots chan struct{}

	mu        sync.Mutex
	available []*Conn
	inUse     map[uuid.UUID]*Conn
	closed    bool

	retry RetryPolicy

	// observability, teacher-style toggles
	loggingEnabled     bool
	logger             *slog.Logger
	slowQueryThreshold time.Duration
	metricsEnabled     bool
	metrics            *Metrics
	meterProvider      metric.MeterProvider
	telemetryEnabled   bool

	maint *maintenance
}

// Stats is a consistent snapshot of pool occupancy.
// InUse + Available == Total <= capacity at every observation point.
type Stats struct {
	Total     int `json:"total"`
	InUse     int `json:"in_use"`
	Available int `json:"available"`
}

// NewPool creates a pool over an already-opened Database. The pool references
// the handle; it never duplicates or closes it.
func NewPool(ctx context.Context, db Database, cfg Config) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("nil database")
	}
	cfg.applyDefaults()
	if err := ValidatePoolConfig(cfg.Pool); err != nil {
		return nil, err
	}
	p := &Pool{
		db:                 db,
		cfg:                cfg,
		slots:              make(chan struct{}, cfg.Pool.Capacity),
		inUse:              make(map[uuid.UUID]*Conn),
		retry:              cfg.Retry,
		slowQueryThreshold: cfg.SlowQueryThreshold,
	}
	for i := 0; i < cfg.Pool.Capacity; i++ {
		p.slots <- struct{}{}
	}
	return p, nil
}

// Capacity returns the fixed maximum number of connections.
func (p *Pool) Capacity() int { return p.cfg.Pool.Capacity }

// Acquire hands out an available connection, creating a fresh one while the
// total is below capacity. At capacity with nothing available it either
// blocks until a release (cancellable via ctx, bounded by AcquireTimeout) or
// fails immediately with ErrPoolExhausted, per PoolConfig.Blocking.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p == nil {
		return nil, fmt.Errorf("nil pool")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newError(ErrPoolClosed, OpConnect, ErrPoolClosed)
	}
	p.mu.Unlock()

	if err := p.takeSlot(ctx); err != nil {
		return nil, err
	}
	// Permit held from here on: either hand back a connection or the permit.

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.returnSlot()
		return nil, newError(ErrPoolClosed, OpConnect, ErrPoolClosed)
	}
	if n := len(p.available); n > 0 {
		c := p.available[n-1]
		p.available = p.available[:n-1]
		p.inUse[c.id] = c
		p.mu.Unlock()
		c.touch()
		p.recordAcquire(ctx, false)
		return c, nil
	}
	p.mu.Unlock()

	c, err := newConn(ctx, p.db, p)
	if err != nil {
		p.returnSlot()
		return nil, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		p.returnSlot()
		return nil, newError(ErrPoolClosed, OpConnect, ErrPoolClosed)
	}
	p.inUse[c.id] = c
	p.mu.Unlock()
	p.recordAcquire(ctx, true)
	return c, nil
}

func (p *Pool) takeSlot(ctx context.Context) error {
	if !p.cfg.Pool.Blocking {
		select {
		case <-p.slots:
			return nil
		default:
			return &Error{
				Op:       OpConnect,
				Category: CategoryUnknown,
				Message:  fmt.Sprintf("pool exhausted: all %d connections in use", p.cfg.Pool.Capacity),
				kind:     ErrPoolExhausted,
			}
		}
	}
	wait := ctx
	if p.cfg.Pool.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, p.cfg.Pool.AcquireTimeout)
		defer cancel()
	}
	select {
	case <-p.slots:
		return nil
	case <-wait.Done():
		// The caller's wait ended without a permit; no slot is leaked.
		return &Error{
			Op:       OpConnect,
			Category: classify(wait.Err()),
			Message:  fmt.Sprintf("acquire: %v", wait.Err()),
			kind:     ErrPoolExhausted,
		}
	}
}

func (p *Pool) returnSlot() {
	select {
	case p.slots <- struct{}{}:
	default:
		// Capacity permits only; dropping here would mean a double return.
	}
}

// Release returns a connection to the available set unconditionally, even if
// its last operation failed: expelling bad connections is the health
// machinery's job, which keeps Release O(1) and non-blocking.
func (p *Pool) Release(conn *Conn) {
	if p == nil || conn == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.inUse[conn.id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, conn.id)
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		p.returnSlot()
		return
	}
	p.available = append(p.available, conn)
	p.mu.Unlock()
	conn.touch()
	p.returnSlot()
	p.recordRelease(context.Background())
}

// GetStats returns a consistent occupancy snapshot.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, u := len(p.available), len(p.inUse)
	return Stats{Total: a + u, InUse: u, Available: a}
}

// CleanupIdle destroys available connections idle for longer than maxIdle and
// shrinks the pool accordingly. In-use connections are never touched. The
// decision runs under the pool mutex, so a concurrent Acquire cannot pick a
// connection that is being evicted.
func (p *Pool) CleanupIdle(maxIdle time.Duration) int {
	if p == nil {
		return 0
	}
	now := time.Now()
	var victims []*Conn
	p.mu.Lock()
	kept := p.available[:0]
	for _, c := range p.available {
		if now.Sub(c.idleSince()) > maxIdle {
			victims = append(victims, c)
		} else {
			kept = append(kept, c)
		}
	}
	p.available = kept
	p.mu.Unlock()
	for _, c := range victims {
		_ = c.Close()
		p.logConnection(context.Background(), "evict_idle", 0, nil)
		p.recordEviction(context.Background(), "idle")
	}
	return len(victims)
}

// HealthCheckAll validates every available connection. Connections that fail
// validation (including failed connections whose recovery does not succeed)
// are destroyed and removed; a connection that recovered is kept. In-use
// connections are never probed. The pool mutex is held for the duration so
// validation cannot race an acquire; with an in-process engine the probes are
// cheap.
func (p *Pool) HealthCheckAll(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("nil pool")
	}
	var errs *multierror.Error
	p.mu.Lock()
	kept := p.available[:0]
	var victims []*Conn
	for _, c := range p.available {
		if err := c.Validate(ctx); err != nil {
			victims = append(victims, c)
			errs = multierror.Append(errs, fmt.Errorf("connection %s: %w", c.id, err))
		} else {
			kept = append(kept, c)
		}
	}
	p.available = kept
	p.mu.Unlock()
	for _, c := range victims {
		if cerr := c.Close(); cerr != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing connection %s: %w", c.id, cerr))
		}
		p.logConnection(ctx, "evict_unhealthy", 0, nil)
		p.recordEviction(ctx, "unhealthy")
	}
	return errs.ErrorOrNil()
}

// WithConn acquires a connection, runs fn, and always releases, whatever fn
// does: error returns, early panics, everything goes through the deferred
// release. An exhausted pool propagates without invoking fn.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// Close tears the pool down, destroying every connection it still tracks.
// The shared Database handle stays open; its owner closes it.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	if p.maint != nil {
		_ = p.StopMaintenance()
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	victims := make([]*Conn, 0, len(p.available)+len(p.inUse))
	victims = append(victims, p.available...)
	p.available = nil
	for _, c := range p.inUse {
		victims = append(victims, c)
	}
	p.inUse = make(map[uuid.UUID]*Conn)
	p.mu.Unlock()

	var errs *multierror.Error
	for _, c := range victims {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing connection %s: %w", c.id, err))
		}
	}
	return errs.ErrorOrNil()
}
