package engine

import (
	"time"

	"github.com/dukex/agentgraph/pkg/eventbus"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/scheduler"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPauseTTL bounds how long a pending review stays in the pause-state store.
	DefaultPauseTTL = 24 * time.Hour

	// DefaultAuditTTL bounds how long a resolved review is kept for audit.
	DefaultAuditTTL = time.Hour
)

// Config holds the tunables of an engine.
type Config struct {
	Strategy    scheduler.Strategy
	Concurrency int
	PauseTTL    time.Duration
	AuditTTL    time.Duration
}

// DefaultConfig returns the configuration used when no option overrides it.
func DefaultConfig() Config {
	return Config{
		Strategy:    scheduler.StrategyLevel,
		Concurrency: scheduler.DefaultConcurrency,
		PauseTTL:    DefaultPauseTTL,
		AuditTTL:    DefaultAuditTTL,
	}
}

type Option func(*Engine)

// WithConfig replaces the whole configuration. Zero fields keep their defaults.
func WithConfig(config Config) Option {
	return func(e *Engine) {
		if config.Strategy != "" {
			e.config.Strategy = config.Strategy
		}

		if config.Concurrency > 0 {
			e.config.Concurrency = config.Concurrency
		}

		if config.PauseTTL > 0 {
			e.config.PauseTTL = config.PauseTTL
		}

		if config.AuditTTL > 0 {
			e.config.AuditTTL = config.AuditTTL
		}
	}
}

func WithStrategy(strategy scheduler.Strategy) Option {
	return func(e *Engine) {
		e.config.Strategy = strategy
	}
}

func WithConcurrency(concurrency int) Option {
	return func(e *Engine) {
		e.config.Concurrency = concurrency
	}
}

// WithExecutor sets the executor handed to every node that calls a model.
func WithExecutor(executor protocol.NodeExecutor) Option {
	return func(e *Engine) {
		e.executor = executor
	}
}

func WithEventSink(sink eventbus.EventSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithNodeLog records every node execution in the audit log.
func WithNodeLog(logs persistence.NodeLogRepository) Option {
	return func(e *Engine) {
		e.logs = logs
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}
