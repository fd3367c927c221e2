package protocol

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
)

// ExecutorRequest describes one unit of work handed to a NodeExecutor.
type ExecutorRequest struct {
	ExecutionID    string                       `json:"execution_id"`
	ConversationID string                       `json:"conversation_id"`
	NodeID         string                       `json:"node_id"`
	NodeName       string                       `json:"node_name"`
	NodeType       models.NodeType              `json:"type"`
	Prompt         string                       `json:"prompt"`
	Config         map[string]any               `json:"config,omitempty"`
	Input          models.UserInput             `json:"input"`
	History        []models.Message             `json:"history,omitempty"`
	Results        map[string]models.NodeResult `json:"results,omitempty"`
	Variables      map[string]any               `json:"variables,omitempty"`
	Iteration      int                          `json:"iteration,omitempty"`
	TemplateData   map[string]any               `json:"-"`
}

// ExecutorOutput is what a NodeExecutor produces.
type ExecutorOutput struct {
	Content string         `json:"content"`
	Data    map[string]any `json:"data,omitempty"`
	// Done ends a reasoning loop early.
	Done bool `json:"done,omitempty"`
}

// NodeExecutor produces node output. How it does so (model call, HTTP call, rule
// evaluation) is opaque to the engine. Partial output may be streamed through the
// publisher; the returned output is authoritative.
type NodeExecutor interface {
	Execute(ctx context.Context, req ExecutorRequest, stream StreamPublisher) (*ExecutorOutput, error)
}

// NodeExecutorFunc adapts a function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, req ExecutorRequest, stream StreamPublisher) (*ExecutorOutput, error)

func (f NodeExecutorFunc) Execute(ctx context.Context, req ExecutorRequest, stream StreamPublisher) (*ExecutorOutput, error) {
	return f(ctx, req, stream)
}

// StreamPublisher accepts ordered output chunks of one node run followed by exactly one
// terminal signal.
type StreamPublisher interface {
	Chunk(ctx context.Context, content string) error
	Complete(ctx context.Context) error
	Fail(ctx context.Context, err error) error
}

// DiscardStream ignores everything written to it.
type DiscardStream struct{}

func (DiscardStream) Chunk(context.Context, string) error { return nil }
func (DiscardStream) Complete(context.Context) error      { return nil }
func (DiscardStream) Fail(context.Context, error) error   { return nil }
