package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"node_executions", "executions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("agentgraph_test"),
			postgres.WithUsername("agentgraph"),
			postgres.WithPassword("agentgraph"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func sampleExecution(conversationID string) *models.Execution {
	return &models.Execution{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Graph: &models.Graph{
			ID:          "support",
			StartNodeID: "plan",
			Nodes: map[string]*models.NodeSpec{
				"plan": {ID: "plan", Type: models.NodeTypePlan},
				"act":  {ID: "act", Type: models.NodeTypeAct},
			},
			Edges: []*models.Edge{{Source: "plan", Target: "act", Kind: models.EdgeKindDependency}},
		},
		Status: models.ExecutionStatusPending,
		NodeStatuses: map[string]models.NodeStatus{
			"plan": models.NodeStatusPending,
			"act":  models.NodeStatusPending,
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)
	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	execution := sampleExecution("conv-1")
	require.NoError(t, repo.Save(ctx, execution))
	assert.Equal(t, int64(1), execution.Version)

	err := repo.Save(ctx, execution)
	assert.ErrorIs(t, err, persistence.ErrExecutionAlreadyExists)

	pausedAt := time.Now().UTC()
	execution.Status = models.ExecutionStatusPaused
	execution.NodeStatuses["plan"] = models.NodeStatusSucceeded
	execution.PausedNodeID = "act"
	execution.PausedPhase = models.PausePhaseBeforeExecution
	execution.Snapshot = &models.ExecutionContextSnapshot{
		PausedNodeID:    "act",
		ExecutedNodeIDs: []string{"plan"},
		PausedAt:        pausedAt,
		UserInput:       models.UserInput{Raw: "Hi", Normalized: "hi"},
	}
	execution.PendingRequest = &models.HumanInterventionRequest{
		ExecutionID:    execution.ID,
		ConversationID: "conv-1",
		NodeID:         "act",
		Message:        "Approve?",
		Phase:          models.PausePhaseBeforeExecution,
	}

	stale := *execution

	require.NoError(t, repo.Update(ctx, execution))
	assert.Equal(t, int64(2), execution.Version)

	err = repo.Update(ctx, &stale)
	assert.True(t, persistence.IsStaleVersion(err))

	found, err := repo.FindByConversationID(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, execution.ID, found.ID)
	assert.Equal(t, models.ExecutionStatusPaused, found.Status)
	assert.Equal(t, models.PausePhaseBeforeExecution, found.PausedPhase)
	assert.Equal(t, models.NodeStatusSucceeded, found.NodeStatuses["plan"])
	require.NotNil(t, found.Snapshot)
	assert.Equal(t, []string{"plan"}, found.Snapshot.ExecutedNodeIDs)
	require.NotNil(t, found.PendingRequest)
	assert.Equal(t, "Approve?", found.PendingRequest.Message)
	assert.Equal(t, "plan", found.Graph.StartNodeID)

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_FindByConversationIDLatest(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	first := sampleExecution("conv-2")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Save(ctx, first))

	second := sampleExecution("conv-2")
	require.NoError(t, repo.Save(ctx, second))

	found, err := repo.FindByConversationID(ctx, "conv-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestNodeLogRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	execution := sampleExecution("conv-3")
	require.NoError(t, p.Executions().Save(ctx, execution))

	entry := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		NodeID:      "plan",
		NodeType:    models.NodeTypePlan,
		Status:      models.NodeStatusRunning,
		Input:       map[string]any{"user_input": "hi"},
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, p.NodeLogs().Start(ctx, entry))

	completed := entry.StartedAt.Add(20 * time.Millisecond)
	entry.Status = models.NodeStatusSucceeded
	entry.Output = map[string]any{"content": "a plan"}
	entry.CompletedAt = &completed
	entry.DurationMs = 20
	require.NoError(t, p.NodeLogs().Finish(ctx, entry))

	entries, err := p.NodeLogs().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.NodeStatusSucceeded, entries[0].Status)
	assert.Equal(t, "hi", entries[0].Input["user_input"])
	assert.Equal(t, map[string]any{"content": "a plan"}, entries[0].Output)
	assert.Equal(t, int64(20), entries[0].DurationMs)
	require.NotNil(t, entries[0].CompletedAt)
}
