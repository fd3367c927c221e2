// Package protocol defines the interfaces and contracts between the engine, its nodes
// and the executors that produce node output.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/models"
)

// RouteStop is the router decision that selects no branch.
const RouteStop = "stop"

// OutcomeKind tags the result of a node body.
type OutcomeKind string

const (
	OutcomeContinue OutcomeKind = "continue"
	OutcomeRoute    OutcomeKind = "route"
	OutcomePause    OutcomeKind = "pause"
)

// Outcome is what a node body returns when it does not fail.
type Outcome struct {
	Kind    OutcomeKind
	Content any
	Data    map[string]any

	// Route: a candidate node id or RouteStop.
	Decision string

	// Pause.
	Request *models.HumanInterventionRequest
	Phase   models.PausePhase
}

// Continue builds a successful outcome carrying the node output.
func Continue(content any, data map[string]any) Outcome {
	return Outcome{Kind: OutcomeContinue, Content: content, Data: data}
}

// Route builds a routing outcome.
func Route(decision string, data map[string]any) Outcome {
	return Outcome{Kind: OutcomeRoute, Content: decision, Decision: decision, Data: data}
}

// Pause builds an outcome that suspends the run for a human decision.
func Pause(request *models.HumanInterventionRequest, phase models.PausePhase) Outcome {
	return Outcome{Kind: OutcomePause, Request: request, Phase: phase}
}

// IsStop reports whether a route outcome selects no branch.
func (o Outcome) IsStop() bool {
	return o.Kind == OutcomeRoute && (o.Decision == "" || o.Decision == RouteStop)
}

// Input is what a node body receives for one execution.
type Input struct {
	Context *execution.Context
	Stream  StreamPublisher
	Logger  *slog.Logger
}

// Log returns the node logger, falling back to the default logger.
func (in Input) Log() *slog.Logger {
	if in.Logger == nil {
		return slog.Default()
	}

	return in.Logger
}

// Node is one executable step. The set of implementations is closed: one per
// models.NodeType.
type Node interface {
	ID() string
	Type() models.NodeType
	Execute(ctx context.Context, in Input) (Outcome, error)
}

// BranchingNode is implemented by nodes that choose between downstream candidates.
type BranchingNode interface {
	Node
	Candidates() []string
}

// Dependencies are handed to factories when a node is built.
type Dependencies struct {
	Graph    *models.Graph
	Executor NodeExecutor
	Logger   *slog.Logger
}

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create creates a new node instance from its spec
	Create(ctx context.Context, spec *models.NodeSpec, deps Dependencies) (Node, error)

	// ID returns the node type this factory builds
	ID() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}
