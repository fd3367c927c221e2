// Package scheduler drives a graph run over the dependency tracker. Two strategies are
// provided: level-batched, which runs one topological level at a time, and event-driven,
// which submits every node as soon as its dependencies complete.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
)

type Strategy string

const (
	StrategyLevel Strategy = "level"
	StrategyEvent Strategy = "event"
)

// ErrStalled is reported when a pass ends without failure or pause while enabled nodes
// are still waiting on dependencies that can no longer complete.
var ErrStalled = errors.New("run ended with nodes that never became ready")

// DefaultConcurrency bounds how many nodes run at once.
const DefaultConcurrency = 4

// Status is how a scheduler run ended.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusPaused      Status = "paused"
	StatusInterrupted Status = "interrupted"
)

// Result describes the end of a scheduler run. NodeID is the paused or failed node.
type Result struct {
	Status Status
	NodeID string
	Pause  protocol.Outcome
	Err    error
}

// Run is everything a strategy needs for one pass over a graph. Tracker and Aggregate
// may already carry state when a paused run is resumed.
type Run struct {
	Graph     *models.Graph
	Nodes     map[string]protocol.Node
	Tracker   *graph.Tracker
	Aggregate *execution.Aggregate
	Context   *execution.Context
	Lifecycle *nodes.Lifecycle
	Logger    *slog.Logger
}

type Scheduler interface {
	Strategy() Strategy
	Run(ctx context.Context, run *Run) *Result
}

// New returns the scheduler of a strategy. A non-positive concurrency uses the default.
func New(strategy Strategy, concurrency int, logger *slog.Logger) (Scheduler, error) {
	switch strategy {
	case StrategyLevel, "":
		return NewLevelScheduler(concurrency, logger), nil
	case StrategyEvent:
		return NewEventScheduler(concurrency, logger), nil
	default:
		return nil, fmt.Errorf("unsupported scheduler strategy: %s", strategy)
	}
}

func normalizeConcurrency(concurrency int) int {
	if concurrency <= 0 {
		return DefaultConcurrency
	}

	return concurrency
}
