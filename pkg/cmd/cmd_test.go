package cmd

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/agentgraph/pkg/engine"
	"github.com/dukex/agentgraph/pkg/executors/httpexec"
	"github.com/dukex/agentgraph/pkg/executors/openaiexec"
	"github.com/dukex/agentgraph/pkg/executors/static"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence/memory"
	"github.com/dukex/agentgraph/pkg/scheduler"
	"github.com/dukex/agentgraph/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"./data":                            "file",
		"file:///tmp/agentgraph":            "file",
		"postgres://user:pw@localhost/db":   "postgresql",
		"postgresql://user:pw@localhost/db": "postgresql",
		"mysql://localhost":                 "file",
	}

	for url, want := range tests {
		assert.Equal(t, want, PersistenceProvider(url), url)
	}
}

func TestNewPauseStore_MemoryWithoutURL(t *testing.T) {
	store, closeFn, err := NewPauseStore(context.Background(), slog.Default(), "")
	require.NoError(t, err)

	assert.IsType(t, &memory.PauseStore{}, store)
	assert.NoError(t, closeFn())
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("", "", "agentgraph-test", slog.Default())
	require.NoError(t, err)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus("rabbitmq", "", "agentgraph-test", slog.Default())
	assert.Error(t, err)

	_, err = NewEventBus(EventBusKafka, " , ", "agentgraph-test", slog.Default())
	assert.Error(t, err)
}

func TestNewExecutor(t *testing.T) {
	tests := []struct {
		name     string
		opts     ExecutorOptions
		expected any
	}{
		{name: "offline", opts: ExecutorOptions{}, expected: &static.Executor{}},
		{
			name:     "gateway",
			opts:     ExecutorOptions{GatewayURL: "http://localhost:8080/v1/complete", GatewayTimeout: time.Second, OpenAIAPIKey: "sk-test"},
			expected: &httpexec.Executor{},
		},
		{name: "openai", opts: ExecutorOptions{OpenAIAPIKey: "sk-test", GatewayTimeout: time.Second}, expected: &openaiexec.Executor{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, err := NewExecutor(tt.opts, slog.Default())
			require.NoError(t, err)
			assert.IsType(t, tt.expected, executor)
		})
	}
}

func TestNewRuntime_FileBackend(t *testing.T) {
	ctx := context.Background()

	rt, err := NewRuntime(ctx, slog.Default(), Options{
		ServiceName: "agentgraph-test",
		DatabaseURL: t.TempDir(),
		Strategy:    scheduler.StrategyEvent,
		Concurrency: 2,
	})
	require.NoError(t, err)

	defer func() { assert.NoError(t, rt.Close(ctx)) }()

	assert.Equal(t, scheduler.StrategyEvent, rt.Engine.Config().Strategy)
	assert.Equal(t, 2, rt.Engine.Config().Concurrency)
	assert.Equal(t, engine.DefaultPauseTTL, rt.Engine.Config().PauseTTL)

	result, err := rt.Engine.Execute(ctx, testutil.LinearGraph("A", "B"), engine.Initial{UserInput: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusSuccess, result.Status)
	require.NoError(t, rt.Persistence.HealthCheck(ctx))
}

func TestNewRuntime_ReleasesOnError(t *testing.T) {
	_, err := NewRuntime(context.Background(), slog.Default(), Options{
		DatabaseURL: t.TempDir(),
		EventBus:    "carrier-pigeon",
	})
	assert.Error(t, err)
}
