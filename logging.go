package ygggo_graph

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

var defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// EnableLogging enables or disables structured logging for this pool.
func (p *Pool) EnableLogging(enabled bool) {
	if p == nil {
		return
	}
	p.loggingEnabled = enabled
	if enabled && p.logger == nil {
		p.logger = defaultLogger
	}
}

// SetLogger sets a custom logger for this pool.
func (p *Pool) SetLogger(logger *slog.Logger) {
	if p == nil {
		return
	}
	p.logger = logger
}

// SetSlowQueryThreshold sets the duration above which queries are logged at
// warning level.
func (p *Pool) SetSlowQueryThreshold(d time.Duration) {
	if p == nil {
		return
	}
	p.slowQueryThreshold = d
}

// logQuery logs query execution with structured fields.
func (p *Pool) logQuery(ctx context.Context, operation, query string, duration time.Duration, err error) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("query", query),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		var gerr *Error
		if errors.As(err, &gerr) {
			attrs = append(attrs, slog.String("category", string(gerr.Category)))
		}
	} else {
		attrs = append(attrs, slog.String("status", "success"))
	}

	if p.slowQueryThreshold > 0 && duration > p.slowQueryThreshold {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
		return
	}
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	p.logger.LogAttrs(ctx, level, "graph query executed", attrs...)
}

// logConnection logs connection lifecycle events (open, evict, close).
func (p *Pool) logConnection(ctx context.Context, event string, duration time.Duration, err error) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		p.logger.LogAttrs(ctx, slog.LevelError, "graph connection event", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "success"))
	p.logger.LogAttrs(ctx, slog.LevelDebug, "graph connection event", attrs...)
}

// logTransaction logs transaction events (begin, commit, rollback).
func (p *Pool) logTransaction(ctx context.Context, event string, duration time.Duration, err error) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		p.logger.LogAttrs(ctx, slog.LevelError, "graph transaction event", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "success"))
	p.logger.LogAttrs(ctx, slog.LevelInfo, "graph transaction event", attrs...)
}

// logPoolStats logs an occupancy snapshot.
func (p *Pool) logPoolStats(ctx context.Context, stats Stats) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	p.logger.LogAttrs(ctx, slog.LevelDebug, "connection pool stats",
		slog.Int("total", stats.Total),
		slog.Int("in_use", stats.InUse),
		slog.Int("available", stats.Available),
		slog.Int("capacity", p.cfg.Pool.Capacity),
	)
}
