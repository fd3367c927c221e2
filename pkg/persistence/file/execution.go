package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
)

// ExecutionRepository handles execution record file operations.
type ExecutionRepository struct {
	root string // File system root for storing executions

	// mu serialises the read-check-write of the version guard.
	mu sync.Mutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

// Save writes a new execution record with version 1.
func (r *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path(execution.ID)); err == nil {
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now
	execution.Version = 1

	return r.write(execution)
}

// Update overwrites the record if the stored version matches and bumps the version.
func (r *ExecutionRepository) Update(_ context.Context, execution *models.Execution) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read(execution.ID)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if stored.Version != execution.Version {
		return persistence.NewExecutionError("Update", execution.ID,
			fmt.Errorf("%w: stored %d, given %d", persistence.ErrStaleVersion, stored.Version, execution.Version))
	}

	execution.Version++
	execution.UpdatedAt = time.Now().UTC()

	if err := r.write(execution); err != nil {
		execution.Version--

		return err
	}

	return nil
}

// FindByID retrieves an execution record by its id.
func (r *ExecutionRepository) FindByID(_ context.Context, id string) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("FindByID", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.read(id)
	if err != nil {
		return nil, persistence.NewExecutionError("FindByID", id, err)
	}

	return execution, nil
}

// FindByConversationID scans the stored records and returns the most recently created
// one of the conversation.
func (r *ExecutionRepository) FindByConversationID(_ context.Context, conversationID string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewConversationError("FindByConversationID", conversationID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	var latest *models.Execution

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		execution, err := r.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		if execution.ConversationID != conversationID {
			continue
		}

		if latest == nil || execution.CreatedAt.After(latest.CreatedAt) {
			latest = execution
		}
	}

	if latest == nil {
		return nil, persistence.NewConversationError("FindByConversationID", conversationID, persistence.ErrExecutionNotFound)
	}

	return latest, nil
}

func (r *ExecutionRepository) read(id string) (*models.Execution, error) {
	data, err := os.ReadFile(r.path(id)) // #nosec G304 -- id is validated and the path constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(data, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) write(execution *models.Execution) error {
	err := os.MkdirAll(r.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	err = writeFile(r.path(execution.ID), data)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}
