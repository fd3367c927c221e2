package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentgraph/pkg/engine"
	"github.com/dukex/agentgraph/pkg/eventbus"
	"github.com/dukex/agentgraph/pkg/executors/openaiexec"
	"github.com/dukex/agentgraph/pkg/otelhelper"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

// EngineFlags are the flags shared by every command that builds an engine.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Execution store URL (postgres://... or a directory path)",
			Value:   "./data",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Pause-state store URL; pending reviews stay in memory when empty",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   EventBusGoChannel,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "gateway-url",
			Usage:   "Model gateway URL; nodes answer from their config when empty",
			Sources: cli.EnvVars("GATEWAY_URL"),
		},
		&cli.DurationFlag{
			Name:    "gateway-timeout",
			Usage:   "Timeout of one model gateway call",
			Value:   time.Minute,
			Sources: cli.EnvVars("GATEWAY_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "openai-api-key",
			Usage:   "OpenAI API key; used when no gateway URL is set",
			Sources: cli.EnvVars("OPENAI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "openai-base-url",
			Usage:   "OpenAI compatible API base URL",
			Sources: cli.EnvVars("OPENAI_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "openai-model",
			Usage:   "Chat model used by the OpenAI executor",
			Value:   string(openaiexec.DefaultModel),
			Sources: cli.EnvVars("OPENAI_MODEL"),
		},
		&cli.StringFlag{
			Name:    "scheduler",
			Usage:   "Scheduling strategy (level, event)",
			Value:   string(scheduler.StrategyLevel),
			Sources: cli.EnvVars("SCHEDULER"),
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Maximum nodes running at once",
			Value:   scheduler.DefaultConcurrency,
			Sources: cli.EnvVars("CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "pause-ttl",
			Usage:   "How long a pending review is kept in the pause-state store",
			Value:   engine.DefaultPauseTTL,
			Sources: cli.EnvVars("PAUSE_TTL"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json, tint)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// Options configures NewRuntime.
type Options struct {
	ServiceName  string
	DatabaseURL  string
	RedisURL     string
	EventBus     string
	KafkaBrokers string
	Executor     ExecutorOptions
	Strategy     scheduler.Strategy
	Concurrency  int
	PauseTTL     time.Duration
	OTel         bool
}

// OptionsFromCommand reads the engine flags of a command.
func OptionsFromCommand(serviceName string, command *cli.Command) Options {
	return Options{
		ServiceName:  serviceName,
		DatabaseURL:  command.String("database-url"),
		RedisURL:     command.String("redis-url"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
		Executor: ExecutorOptions{
			GatewayURL:     command.String("gateway-url"),
			GatewayTimeout: command.Duration("gateway-timeout"),
			OpenAIAPIKey:   command.String("openai-api-key"),
			OpenAIBaseURL:  command.String("openai-base-url"),
			OpenAIModel:    command.String("openai-model"),
		},
		Strategy:    scheduler.Strategy(command.String("scheduler")),
		Concurrency: command.Int("concurrency"),
		PauseTTL:    command.Duration("pause-ttl"),
		OTel:        command.Bool("otel"),
	}
}

// Runtime is a wired engine and the resources behind it.
type Runtime struct {
	Engine      *engine.Engine
	Persistence persistence.Persistence
	Pauses      persistence.PauseStateStore
	EventBus    eventbus.EventBus

	closers []func(ctx context.Context) error
}

// NewRuntime opens the stores, the event bus and the tracer and builds an engine over them.
// On error everything opened so far is closed again.
func NewRuntime(ctx context.Context, logger *slog.Logger, opts Options) (_ *Runtime, err error) {
	rt := &Runtime{}

	defer func() {
		if err != nil {
			if closeErr := rt.Close(ctx); closeErr != nil {
				logger.ErrorContext(ctx, "Failed to release runtime after setup error", "error", closeErr)
			}
		}
	}()

	rt.Persistence, err = NewPersistence(ctx, logger, opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}

	rt.closers = append(rt.closers, rt.Persistence.Close)

	pauses, closePauses, err := NewPauseStore(ctx, logger, opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open pause-state store: %w", err)
	}

	rt.Pauses = pauses
	rt.closers = append(rt.closers, func(context.Context) error { return closePauses() })

	rt.EventBus, err = NewEventBus(opts.EventBus, opts.KafkaBrokers, opts.ServiceName, logger)
	if err != nil {
		return nil, err
	}

	rt.closers = append(rt.closers, func(context.Context) error { return rt.EventBus.Close() })

	tracer := otelhelper.NoopTracer()

	if opts.OTel {
		var shutdown otelhelper.ShutdownFunc

		tracer, shutdown, err = otelhelper.NewTracer(ctx, opts.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.closers = append(rt.closers, shutdown)
	}

	executor, err := NewExecutor(opts.Executor, logger)
	if err != nil {
		return nil, err
	}

	rt.Engine, err = engine.New(logger, NewRegistry(logger), rt.Persistence.Executions(), rt.Pauses,
		engine.WithConfig(engine.Config{
			Strategy:    opts.Strategy,
			Concurrency: opts.Concurrency,
			PauseTTL:    opts.PauseTTL,
		}),
		engine.WithExecutor(executor),
		engine.WithEventSink(eventbus.NewPublisherSink(rt.EventBus, logger)),
		engine.WithNodeLog(rt.Persistence.NodeLogs()),
		engine.WithTracer(tracer),
	)
	if err != nil {
		return nil, err
	}

	return rt, nil
}

// Close releases the runtime resources in reverse opening order.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.closers = nil

	return errors.Join(errs...)
}
