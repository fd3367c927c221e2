package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
)

// NodeLogRepository stores one file per node execution under node_executions/{executionID}.
type NodeLogRepository struct {
	root string
}

// NewNodeLogRepository creates a new node audit log repository.
func NewNodeLogRepository(root string) *NodeLogRepository {
	return &NodeLogRepository{root: root}
}

func (r *NodeLogRepository) dir(executionID string) string {
	return filepath.Join(r.root, "node_executions", executionID)
}

// Start records a running entry.
func (r *NodeLogRepository) Start(_ context.Context, entry *models.NodeExecution) error {
	return r.write(entry)
}

// Finish overwrites the entry with its final state.
func (r *NodeLogRepository) Finish(_ context.Context, entry *models.NodeExecution) error {
	return r.write(entry)
}

// ListByExecution returns the entries of an execution ordered by start time.
func (r *NodeLogRepository) ListByExecution(_ context.Context, executionID string) ([]*models.NodeExecution, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewExecutionError("ListByExecution", executionID, err)
	}

	files, err := os.ReadDir(r.dir(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.NodeExecution{}, nil
		}

		return nil, fmt.Errorf("failed to read node executions of %s: %w", executionID, err)
	}

	entries := make([]*models.NodeExecution, 0, len(files))

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		filePath := filepath.Join(r.dir(executionID), file.Name())

		data, err := os.ReadFile(filePath) // #nosec G304 -- filePath is built from a validated directory listing
		if err != nil {
			return nil, fmt.Errorf("failed to read node execution %s: %w", file.Name(), err)
		}

		var entry models.NodeExecution
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node execution %s: %w", file.Name(), err)
		}

		entries = append(entries, &entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})

	return entries, nil
}

func (r *NodeLogRepository) write(entry *models.NodeExecution) error {
	if err := validateID(entry.ExecutionID); err != nil {
		return persistence.NewExecutionError("WriteNodeExecution", entry.ExecutionID, err)
	}

	if err := validateID(entry.ID); err != nil {
		return persistence.NewExecutionError("WriteNodeExecution", entry.ExecutionID, err)
	}

	dir := r.dir(entry.ExecutionID)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create node executions directory: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal node execution %s: %w", entry.ID, err)
	}

	err = writeFile(filepath.Join(dir, entry.ID+".json"), data)
	if err != nil {
		return fmt.Errorf("failed to write node execution %s: %w", entry.ID, err)
	}

	return nil
}
