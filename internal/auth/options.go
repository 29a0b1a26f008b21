package auth

import (
	"context"
	"log/slog"
	"time"
)

// Metrics receives auth outcome counters. obs.Metrics implements it.
type Metrics interface {
	ObserveLogin(result string)
	ObserveVerification(result string)
	ObserveDecision(decision string)
	ObserveRefresh(result string)
	ObserveHash(d time.Duration)
	HashPoolWaiting(delta float64)
}

// AuditSink records security-relevant events. audit.Logger implements it.
type AuditSink interface {
	Record(ctx context.Context, event string, fields map[string]any)
}

type options struct {
	now     func() time.Time
	logger  *slog.Logger
	metrics Metrics
	audit   AuditSink
}

// Option configures components of the auth core.
type Option func(*options)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithAudit sets the audit sink.
func WithAudit(sink AuditSink) Option {
	return func(o *options) {
		if sink != nil {
			o.audit = sink
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		logger:  slog.Default(),
		metrics: noopMetrics{},
		audit:   noopAudit{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string)        {}
func (noopMetrics) ObserveVerification(string) {}
func (noopMetrics) ObserveDecision(string)     {}
func (noopMetrics) ObserveRefresh(string)      {}
func (noopMetrics) ObserveHash(time.Duration)  {}
func (noopMetrics) HashPoolWaiting(float64)    {}

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, map[string]any) {}
