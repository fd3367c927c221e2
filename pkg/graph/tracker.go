package graph

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dukex/agentgraph/pkg/models"
)

// Tracker holds the per-run dependency state of a graph. A tracker is created fresh for
// every run and is never persisted.
//
// Pending counters are updated with atomic operations so completions of different nodes
// never block each other. The completed set has its own mutex. Disabling takes the
// enabled-set write lock for the whole transitive walk.
type Tracker struct {
	logger *slog.Logger

	pending    map[string]*atomic.Int32
	downstream map[string][]string
	upstream   map[string][]string

	completedMu sync.Mutex
	completed   map[string]bool

	enabledMu sync.RWMutex
	enabled   map[string]bool
}

// NewTracker builds the dependency state for g. Loop-back edges are not counted.
func NewTracker(g *models.Graph, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	_, successors := adjacency(g)

	t := &Tracker{
		logger:     logger,
		pending:    make(map[string]*atomic.Int32, len(g.Nodes)),
		downstream: successors,
		upstream:   make(map[string][]string, len(g.Nodes)),
		completed:  make(map[string]bool, len(g.Nodes)),
		enabled:    make(map[string]bool, len(g.Nodes)),
	}

	for id := range g.Nodes {
		t.pending[id] = &atomic.Int32{}
		t.enabled[id] = true
	}

	for source, targets := range successors {
		for _, target := range targets {
			t.pending[target].Add(1)
			t.upstream[target] = append(t.upstream[target], source)
		}
	}

	for id := range t.upstream {
		sort.Strings(t.upstream[id])
	}

	return t
}

// ReadyNodes returns the nodes with no pending dependency that are enabled and not yet
// completed, in lexical order.
func (t *Tracker) ReadyNodes() []string {
	var ready []string

	for id, counter := range t.pending {
		if counter.Load() == 0 && t.IsEnabled(id) && !t.IsCompleted(id) {
			ready = append(ready, id)
		}
	}

	sort.Strings(ready)

	return ready
}

// MarkCompleted records id as completed and returns the enabled downstream nodes whose
// pending count reached zero. Marking a node twice is a no-op.
func (t *Tracker) MarkCompleted(id string) []string {
	if _, ok := t.pending[id]; !ok {
		t.logger.Warn("Ignoring completion of unknown node", "node_id", id)

		return nil
	}

	t.completedMu.Lock()
	if t.completed[id] {
		t.completedMu.Unlock()
		t.logger.Warn("Node already marked as completed", "node_id", id)

		return nil
	}

	t.completed[id] = true
	t.completedMu.Unlock()

	var ready []string

	for _, child := range t.downstream[id] {
		if !t.IsEnabled(child) {
			continue
		}

		if t.release(child) && !t.IsCompleted(child) {
			ready = append(ready, child)
		}
	}

	return ready
}

// DisableNode removes id from the enabled set and walks its downstream. A child that
// still has another enabled parent stays enabled and treats the disabled parent as
// resolved; a child left without enabled parents is disabled too. It returns every node
// disabled by the call and the surviving children that became ready.
func (t *Tracker) DisableNode(id string) (disabled []string, ready []string) {
	if _, ok := t.pending[id]; !ok {
		t.logger.Warn("Ignoring disable of unknown node", "node_id", id)

		return nil, nil
	}

	t.enabledMu.Lock()
	defer t.enabledMu.Unlock()

	t.disableLocked(id, &disabled, &ready)

	sort.Strings(disabled)
	sort.Strings(ready)

	return disabled, ready
}

func (t *Tracker) disableLocked(id string, disabled, ready *[]string) {
	if !t.enabled[id] || t.IsCompleted(id) {
		return
	}

	t.enabled[id] = false
	*disabled = append(*disabled, id)

	t.logger.Debug("Node disabled", "node_id", id)

	for _, child := range t.downstream[id] {
		if !t.enabled[child] {
			continue
		}

		if t.hasEnabledParentLocked(child) {
			if t.release(child) && !t.IsCompleted(child) {
				*ready = append(*ready, child)
			}

			continue
		}

		t.disableLocked(child, disabled, ready)
	}
}

func (t *Tracker) hasEnabledParentLocked(id string) bool {
	for _, parent := range t.upstream[id] {
		if t.enabled[parent] {
			return true
		}
	}

	return false
}

// ResetNode removes id from the completed set without touching its pending count so it
// can run again after a loop-back.
func (t *Tracker) ResetNode(id string) {
	t.completedMu.Lock()
	defer t.completedMu.Unlock()

	delete(t.completed, id)
}

// Rearm overwrites the pending count of id.
func (t *Tracker) Rearm(id string, pending int) {
	if counter, ok := t.pending[id]; ok {
		counter.Store(int32(pending)) // #nosec G115 -- bounded by the node count
	}
}

// Rewind re-opens region for another pass after a loop-back. Region nodes lose their
// completion and are enabled again, together with every node a route decision disabled
// downstream of them. Each re-opened node, and each waiting child of one, then waits for
// its parents that are re-opened or still outstanding. It returns the re-opened nodes,
// sorted.
func (t *Tracker) Rewind(region []string) []string {
	t.enabledMu.Lock()
	defer t.enabledMu.Unlock()

	t.completedMu.Lock()
	defer t.completedMu.Unlock()

	reopened := make(map[string]bool, len(region))
	queue := make([]string, 0, len(region))

	for _, id := range region {
		if _, ok := t.pending[id]; ok && !reopened[id] {
			reopened[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, child := range t.downstream[current] {
			if reopened[child] || t.enabled[child] || t.completed[child] {
				continue
			}

			reopened[child] = true
			queue = append(queue, child)
		}
	}

	for id := range reopened {
		delete(t.completed, id)
		t.enabled[id] = true
	}

	// Children outside the region that are still waiting were released by region
	// nodes in the previous pass and must wait for them again.
	recount := make(map[string]bool, len(reopened))
	ids := make([]string, 0, len(reopened))

	for id := range reopened {
		recount[id] = true
		ids = append(ids, id)

		for _, child := range t.downstream[id] {
			if !reopened[child] && t.enabled[child] && !t.completed[child] && t.pending[child].Load() > 0 {
				recount[child] = true
			}
		}
	}

	for id := range recount {
		waiting := 0

		for _, parent := range t.upstream[id] {
			if reopened[parent] || (t.enabled[parent] && !t.completed[parent]) {
				waiting++
			}
		}

		t.pending[id].Store(int32(waiting)) // #nosec G115 -- bounded by the node count
	}

	sort.Strings(ids)

	t.logger.Debug("Region rewound", "nodes", ids)

	return ids
}

// IsAllCompleted reports whether every enabled node is completed.
func (t *Tracker) IsAllCompleted() bool {
	return len(t.Outstanding()) == 0
}

// Outstanding returns the enabled nodes that are not completed, in lexical order.
func (t *Tracker) Outstanding() []string {
	t.enabledMu.RLock()
	defer t.enabledMu.RUnlock()

	t.completedMu.Lock()
	defer t.completedMu.Unlock()

	var ids []string

	for id, enabled := range t.enabled {
		if enabled && !t.completed[id] {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	return ids
}

// IsEnabled reports whether id has not been disabled.
func (t *Tracker) IsEnabled(id string) bool {
	t.enabledMu.RLock()
	defer t.enabledMu.RUnlock()

	return t.enabled[id]
}

// IsCompleted reports whether id is in the completed set.
func (t *Tracker) IsCompleted(id string) bool {
	t.completedMu.Lock()
	defer t.completedMu.Unlock()

	return t.completed[id]
}

// Pending returns the current number of unsatisfied dependencies of id.
func (t *Tracker) Pending(id string) int {
	if counter, ok := t.pending[id]; ok {
		return int(counter.Load())
	}

	return 0
}

// Upstream returns the non-loop-back parents of id.
func (t *Tracker) Upstream(id string) []string {
	return t.upstream[id]
}

// Downstream returns the non-loop-back children of id.
func (t *Tracker) Downstream(id string) []string {
	return t.downstream[id]
}

// Completed returns the completed node ids in lexical order.
func (t *Tracker) Completed() []string {
	t.completedMu.Lock()
	defer t.completedMu.Unlock()

	ids := make([]string, 0, len(t.completed))
	for id := range t.completed {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Disabled returns the disabled node ids in lexical order.
func (t *Tracker) Disabled() []string {
	t.enabledMu.RLock()
	defer t.enabledMu.RUnlock()

	var ids []string

	for id, enabled := range t.enabled {
		if !enabled {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	return ids
}

// release decrements the pending counter of id unless it is already zero and reports
// whether this call moved it from one to zero.
func (t *Tracker) release(id string) bool {
	counter := t.pending[id]

	for {
		current := counter.Load()
		if current <= 0 {
			return false
		}

		if counter.CompareAndSwap(current, current-1) {
			return current == 1
		}
	}
}
