package ygggo_graph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus is the outcome of one pool-wide health pass.
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	LastChecked  time.Time     `json:"last_checked"`
	ResponseTime time.Duration `json:"response_time"`
	Stats        Stats         `json:"stats"`
	Evicted      int           `json:"evicted"`
	Errors       []HealthError `json:"errors,omitempty"`
}

// HealthError describes one connection that failed validation.
type HealthError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck runs a validation pass over all available connections and
// returns a status snapshot. Connections that could not be validated or
// recovered have been destroyed by the time this returns.
func (p *Pool) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if p == nil {
		return nil, fmt.Errorf("nil pool")
	}
	start := time.Now()
	before := p.GetStats()
	err := p.HealthCheckAll(ctx)
	after := p.GetStats()

	status := &HealthStatus{
		Healthy:      err == nil,
		LastChecked:  start,
		ResponseTime: time.Since(start),
		Stats:        after,
		Evicted:      before.Total - after.Total,
	}
	if err != nil {
		status.Errors = append(status.Errors, HealthError{
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
	}
	p.logPoolStats(ctx, after)
	return status, nil
}

// maintenance runs the periodic health-check and idle-cleanup loop.
type maintenance struct {
	pool     *Pool
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	running  bool
}

// StartMaintenance starts the background loop that runs HealthCheckAll and
// CleanupIdle every interval. A non-positive interval uses the configured
// MaintenanceInterval.
func (p *Pool) StartMaintenance(interval time.Duration) error {
	if p == nil {
		return fmt.Errorf("nil pool")
	}
	if interval <= 0 {
		interval = p.cfg.Pool.MaintenanceInterval
	}
	if interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive")
	}
	if p.maint == nil {
		p.maint = &maintenance{pool: p}
	}
	p.maint.interval = interval
	return p.maint.start()
}

// StopMaintenance stops the background loop and waits for it to exit.
func (p *Pool) StopMaintenance() error {
	if p == nil || p.maint == nil {
		return fmt.Errorf("maintenance is not configured")
	}
	return p.maint.stop()
}

// MaintenanceRunning reports whether the background loop is active.
func (p *Pool) MaintenanceRunning() bool {
	if p == nil || p.maint == nil {
		return false
	}
	p.maint.mu.Lock()
	defer p.maint.mu.Unlock()
	return p.maint.running
}

func (m *maintenance) start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("maintenance is already running")
	}
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.loop(m.stopChan, m.done)
	return nil
}

func (m *maintenance) stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("maintenance is not running")
	}
	close(m.stopChan)
	done := m.done
	m.running = false
	m.mu.Unlock()
	<-done
	return nil
}

func (m *maintenance) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.runOnce()
		}
	}
}

func (m *maintenance) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()
	// Cleanup runs before validation: the health probe refreshes a
	// connection's last-used timestamp, which would mask its idleness.
	if maxIdle := m.pool.cfg.Pool.MaxIdleTime; maxIdle > 0 {
		m.pool.CleanupIdle(maxIdle)
	}
	_ = m.pool.HealthCheckAll(ctx)
}
