package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const selectExecution = `
	SELECT id, conversation_id, graph, status, node_statuses, current_node_id,
		   paused_node_id, paused_phase, version, snapshot, pending_request,
		   error_message, created_at, updated_at, completed_at
	FROM executions
`

// ExecutionRepository handles execution record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Save inserts a new execution record with version 1.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now
	execution.Version = 1

	columns, err := marshalExecution(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, conversation_id, graph, status, node_statuses, current_node_id,
			paused_node_id, paused_phase, version, snapshot, pending_request,
			error_message, created_at, updated_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.ConversationID,
		columns.graph,
		execution.Status,
		columns.nodeStatuses,
		nullString(execution.CurrentNodeID),
		nullString(execution.PausedNodeID),
		nullString(string(execution.PausedPhase)),
		execution.Version,
		nullJSON(columns.snapshot),
		nullJSON(columns.pendingRequest),
		nullString(execution.ErrorMessage),
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewExecutionError("Save", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return persistence.NewExecutionError("Save", execution.ID, fmt.Errorf("failed to insert execution: %w", err))
	}

	return nil
}

// Update replaces the record guarded by its version and increments the version.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	columns, err := marshalExecution(execution)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	updatedAt := time.Now().UTC()

	query := `
		UPDATE executions SET
			status = $3,
			node_statuses = $4,
			current_node_id = $5,
			paused_node_id = $6,
			paused_phase = $7,
			snapshot = $8,
			pending_request = $9,
			error_message = $10,
			updated_at = $11,
			completed_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.Version,
		execution.Status,
		columns.nodeStatuses,
		nullString(execution.CurrentNodeID),
		nullString(execution.PausedNodeID),
		nullString(string(execution.PausedPhase)),
		nullJSON(columns.snapshot),
		nullJSON(columns.pendingRequest),
		nullString(execution.ErrorMessage),
		updatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, fmt.Errorf("failed to update execution: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)", execution.ID).Scan(&exists)
		if err != nil {
			return persistence.NewExecutionError("Update", execution.ID, err)
		}

		if !exists {
			return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrStaleVersion)
	}

	execution.Version++
	execution.UpdatedAt = updatedAt

	return nil
}

// FindByID retrieves an execution record by its id.
func (r *ExecutionRepository) FindByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, selectExecution+" WHERE id = $1", id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("FindByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("FindByID", id, fmt.Errorf("failed to scan execution: %w", err))
	}

	return execution, nil
}

// FindByConversationID returns the most recently created record of the conversation.
func (r *ExecutionRepository) FindByConversationID(ctx context.Context, conversationID string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx,
		selectExecution+" WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT 1", conversationID)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewConversationError("FindByConversationID", conversationID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewConversationError("FindByConversationID", conversationID,
			fmt.Errorf("failed to scan execution: %w", err))
	}

	return execution, nil
}

type executionColumns struct {
	graph          []byte
	nodeStatuses   []byte
	snapshot       []byte
	pendingRequest []byte
}

func marshalExecution(execution *models.Execution) (executionColumns, error) {
	var (
		columns executionColumns
		err     error
	)

	columns.graph, err = json.Marshal(execution.Graph)
	if err != nil {
		return columns, fmt.Errorf("failed to marshal graph: %w", err)
	}

	columns.nodeStatuses, err = json.Marshal(execution.NodeStatuses)
	if err != nil {
		return columns, fmt.Errorf("failed to marshal node statuses: %w", err)
	}

	if execution.Snapshot != nil {
		columns.snapshot, err = json.Marshal(execution.Snapshot)
		if err != nil {
			return columns, fmt.Errorf("failed to marshal snapshot: %w", err)
		}
	}

	if execution.PendingRequest != nil {
		columns.pendingRequest, err = json.Marshal(execution.PendingRequest)
		if err != nil {
			return columns, fmt.Errorf("failed to marshal pending request: %w", err)
		}
	}

	return columns, nil
}

// scanExecution scans an execution record from a database row.
func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.Execution, error) {
	var (
		execution      models.Execution
		graphJSON      []byte
		statusesJSON   []byte
		snapshotJSON   []byte
		requestJSON    []byte
		currentNodeID  sql.NullString
		pausedNodeID   sql.NullString
		pausedPhase    sql.NullString
		errorMessage   sql.NullString
		completedAtRaw sql.NullTime
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.ConversationID,
		&graphJSON,
		&execution.Status,
		&statusesJSON,
		&currentNodeID,
		&pausedNodeID,
		&pausedPhase,
		&execution.Version,
		&snapshotJSON,
		&requestJSON,
		&errorMessage,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&completedAtRaw,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(graphJSON, &execution.Graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	if err := json.Unmarshal(statusesJSON, &execution.NodeStatuses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node statuses: %w", err)
	}

	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &execution.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
	}

	if len(requestJSON) > 0 {
		if err := json.Unmarshal(requestJSON, &execution.PendingRequest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending request: %w", err)
		}
	}

	execution.CurrentNodeID = currentNodeID.String
	execution.PausedNodeID = pausedNodeID.String
	execution.PausedPhase = models.PausePhase(pausedPhase.String)
	execution.ErrorMessage = errorMessage.String

	if completedAtRaw.Valid {
		completedAt := completedAtRaw.Time
		execution.CompletedAt = &completedAt
	}

	return &execution, nil
}

// nullJSON sends an absent document as SQL NULL.
func nullJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}

	return data
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
