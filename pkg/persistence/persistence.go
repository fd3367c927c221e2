// Package persistence provides the storage contracts for execution records, pending
// human reviews and the node audit log.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
)

// ExecutionRepository stores durable execution records.
type ExecutionRepository interface {
	// Save inserts a new record and assigns it version 1.
	Save(ctx context.Context, execution *models.Execution) error

	// Update replaces a record whose stored version equals execution.Version and
	// increments the version on success. A mismatch returns ErrStaleVersion.
	Update(ctx context.Context, execution *models.Execution) error

	// FindByID returns a record by execution id.
	FindByID(ctx context.Context, id string) (*models.Execution, error)

	// FindByConversationID returns the most recently created record of a conversation.
	FindByConversationID(ctx context.Context, conversationID string) (*models.Execution, error)
}

// PauseStateStore is a fast TTL-bounded store for pending human reviews keyed by
// conversation and node.
type PauseStateStore interface {
	Put(ctx context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error
	Get(ctx context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error)
	Delete(ctx context.Context, conversationID, nodeID string) error

	// Archive keeps a resolved request for audit purposes.
	Archive(ctx context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error
	GetArchived(ctx context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error)
}

// NodeLogRepository stores the audit log of node executions.
type NodeLogRepository interface {
	Start(ctx context.Context, entry *models.NodeExecution) error
	Finish(ctx context.Context, entry *models.NodeExecution) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
}

// Persistence groups the durable repositories of one backend.
type Persistence interface {
	Executions() ExecutionRepository
	NodeLogs() NodeLogRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
