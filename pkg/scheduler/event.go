package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/agentgraph/pkg/protocol"
	"golang.org/x/sync/semaphore"
)

// EventScheduler submits each node as soon as its last dependency completes. A weighted
// semaphore bounds concurrency. Completion is detected by an in-flight counter: the
// worker that drops it to zero closes the done channel.
type EventScheduler struct {
	concurrency int
	logger      *slog.Logger
}

func NewEventScheduler(concurrency int, logger *slog.Logger) *EventScheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventScheduler{concurrency: normalizeConcurrency(concurrency), logger: logger}
}

func (s *EventScheduler) Strategy() Strategy {
	return StrategyEvent
}

func (s *EventScheduler) Run(ctx context.Context, run *Run) *Result {
	e := &eventRun{
		run:       run,
		logger:    s.logger,
		sem:       semaphore.NewWeighted(int64(s.concurrency)),
		loops:     newLoopState(run),
		submitted: make(map[string]bool),
		done:      make(chan struct{}),
		failed:    make(chan struct{}),
	}

	// The seed token keeps the counter above zero until every seed is submitted.
	e.inFlight.Add(1)

	for _, id := range run.Tracker.ReadyNodes() {
		e.submit(ctx, id)
	}

	e.release()

	select {
	case <-e.failed:
		s.logger.InfoContext(ctx, "Run failed, not waiting for in-flight nodes")
	case <-e.done:
	case <-ctx.Done():
	}

	if err := ctx.Err(); err != nil {
		return &Result{Status: StatusInterrupted, Err: err}
	}

	return e.result(ctx)
}

type eventRun struct {
	run    *Run
	logger *slog.Logger
	sem    *semaphore.Weighted
	loops  *loopState

	inFlight atomic.Int64
	stopping atomic.Bool
	done     chan struct{}
	doneOnce sync.Once

	failed     chan struct{}
	failedOnce sync.Once

	mu        sync.Mutex
	submitted map[string]bool
	failure   *step
	pause     *step
}

// submit starts a worker for id unless it is already running or done in this pass.
func (e *eventRun) submit(ctx context.Context, id string) {
	if e.stopping.Load() {
		return
	}

	e.mu.Lock()
	if e.submitted[id] {
		e.mu.Unlock()

		return
	}

	e.submitted[id] = true
	e.mu.Unlock()

	e.inFlight.Add(1)

	go e.work(ctx, id)
}

func (e *eventRun) work(ctx context.Context, id string) {
	defer e.release()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.sem.Release(1)

	if e.stopping.Load() || !e.run.runnable(id) {
		return
	}

	st := e.run.execute(ctx, id)

	switch {
	case st.err != nil:
		e.recordFailure(st)
	case st.outcome.Kind == protocol.OutcomePause:
		e.recordPause(st)
	default:
		for _, next := range e.advance(ctx, st) {
			e.submit(ctx, next)
		}
	}
}

// advance completes a node, or re-arms its loop region when one of its loop-back edges
// fires, and returns the nodes to submit.
func (e *eventRun) advance(ctx context.Context, st step) []string {
	if target, region, ok := e.loops.fire(ctx, st.nodeID); ok {
		e.logger.InfoContext(ctx, "Loop-back fired", "source", st.nodeID, "target", target, "region", region)

		e.mu.Lock()
		for _, id := range region {
			delete(e.submitted, id)
		}
		e.mu.Unlock()

		e.run.Aggregate.ResetNodes(region...)

		return []string{target}
	}

	return e.run.complete(ctx, st.nodeID, st.outcome)
}

func (e *eventRun) recordFailure(st step) {
	e.stopping.Store(true)

	e.mu.Lock()
	if e.failure == nil {
		e.failure = &st
	}
	e.mu.Unlock()

	e.failedOnce.Do(func() { close(e.failed) })
}

// recordPause stops new submissions. In-flight nodes keep running so the snapshot taken
// after the drain contains their results.
func (e *eventRun) recordPause(st step) {
	e.stopping.Store(true)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pause == nil {
		e.pause = &st

		return
	}

	e.run.Aggregate.ResetNodes(st.nodeID)
}

func (e *eventRun) release() {
	if e.inFlight.Add(-1) == 0 {
		e.doneOnce.Do(func() { close(e.done) })
	}
}

func (e *eventRun) result(ctx context.Context) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failure != nil {
		if e.pause != nil {
			e.run.Aggregate.ResetNodes(e.pause.nodeID)
		}

		return &Result{Status: StatusFailed, NodeID: e.failure.nodeID, Err: e.failure.err}
	}

	if e.pause != nil {
		return &Result{Status: StatusPaused, NodeID: e.pause.nodeID, Pause: e.pause.outcome}
	}

	return e.run.finish(ctx)
}
