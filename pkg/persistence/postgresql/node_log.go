package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/agentgraph/pkg/models"
)

// NodeLogRepository writes the node_executions audit table.
type NodeLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeLogRepository creates a new node audit log repository.
func NewNodeLogRepository(db *sql.DB, logger *slog.Logger) *NodeLogRepository {
	return &NodeLogRepository{db: db, logger: logger}
}

// Start inserts a running entry.
func (r *NodeLogRepository) Start(ctx context.Context, entry *models.NodeExecution) error {
	inputJSON, err := json.Marshal(entry.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal node input: %w", err)
	}

	query := `
		INSERT INTO node_executions (id, execution_id, node_id, node_type, status, input_data, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		entry.NodeID,
		entry.NodeType,
		entry.Status,
		inputJSON,
		entry.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node execution %s: %w", entry.ID, err)
	}

	return nil
}

// Finish records the final status, output and duration of an entry.
func (r *NodeLogRepository) Finish(ctx context.Context, entry *models.NodeExecution) error {
	var output any

	if entry.Output != nil {
		data, err := json.Marshal(entry.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal node output: %w", err)
		}

		output = data
	}

	query := `
		UPDATE node_executions
		SET status = $2, output_data = $3, error_message = $4, completed_at = $5, duration_ms = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Status,
		output,
		nullString(entry.Error),
		entry.CompletedAt,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update node execution %s: %w", entry.ID, err)
	}

	return nil
}

// ListByExecution returns the entries of an execution ordered by start time.
func (r *NodeLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	query := `
		SELECT id, execution_id, node_id, node_type, status, input_data, output_data,
			   error_message, started_at, completed_at, duration_ms
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	entries := []*models.NodeExecution{}

	for rows.Next() {
		var (
			entry        models.NodeExecution
			inputJSON    []byte
			outputJSON   []byte
			errorMessage sql.NullString
			completedAt  sql.NullTime
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.NodeID,
			&entry.NodeType,
			&entry.Status,
			&inputJSON,
			&outputJSON,
			&errorMessage,
			&entry.StartedAt,
			&completedAt,
			&entry.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		if len(inputJSON) > 0 {
			if err := json.Unmarshal(inputJSON, &entry.Input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal node input: %w", err)
			}
		}

		if len(outputJSON) > 0 {
			if err := json.Unmarshal(outputJSON, &entry.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal node output: %w", err)
			}
		}

		entry.Error = errorMessage.String

		if completedAt.Valid {
			at := completedAt.Time
			entry.CompletedAt = &at
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return entries, nil
}
