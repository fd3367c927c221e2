// Package execution holds the mutable state of one graph run: the shared context nodes
// read and write, its pause-time snapshot, and the durable execution aggregate.
package execution

import (
	"strings"
	"sync"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
)

// SystemKey names an engine-owned value kept apart from user data. System values are
// never part of a snapshot.
type SystemKey string

const (
	SystemKeyGraph     SystemKey = "graph"
	SystemKeyNodeLogs  SystemKey = "node_logs"
	SystemKeyIteration SystemKey = "iteration"
)

// Trace keeps the most recent results and the message history of a run.
type Trace struct {
	LastResult     *models.NodeResult `json:"last_result,omitempty"`
	PreviousResult *models.NodeResult `json:"previous_result,omitempty"`
	History        []models.Message   `json:"history"`
}

// Context is the shared state of one run. It is safe for concurrent use by node bodies.
type Context struct {
	ExecutionID    string
	ConversationID string

	mu        sync.RWMutex
	variables map[string]any
	results   map[string]models.NodeResult
	executed  []string
	userInput models.UserInput
	trace     Trace
	review    models.HumanReview
	progress  models.Progress

	systemMu sync.RWMutex
	system   map[SystemKey]any
}

// NewContext creates the context of a run over totalNodes nodes.
func NewContext(executionID, conversationID string, input models.UserInput, totalNodes int) *Context {
	if input.Normalized == "" {
		input.Normalized = NormalizeInput(input.Raw)
	}

	return &Context{
		ExecutionID:    executionID,
		ConversationID: conversationID,
		variables:      map[string]any{},
		results:        map[string]models.NodeResult{},
		userInput:      input,
		progress:       models.Progress{Total: totalNodes},
		system:         map[SystemKey]any{},
	}
}

// NormalizeInput trims the input and collapses internal whitespace.
func NormalizeInput(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Set stores a custom variable.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.variables[key] = value
}

// Get returns a custom variable.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.variables[key]

	return value, ok
}

// GetOr returns a custom variable or def when it is not set.
func (c *Context) GetOr(key string, def any) any {
	if value, ok := c.Get(key); ok {
		return value
	}

	return def
}

// GetString returns a string variable or def when it is missing or not a string.
func (c *Context) GetString(key, def string) string {
	if value, ok := c.GetOr(key, def).(string); ok {
		return value
	}

	return def
}

// Variables returns a copy of the custom variables.
func (c *Context) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return copyMap(c.variables)
}

// SetSystem stores an engine-owned value.
func (c *Context) SetSystem(key SystemKey, value any) {
	c.systemMu.Lock()
	defer c.systemMu.Unlock()

	c.system[key] = value
}

// System returns an engine-owned value.
func (c *Context) System(key SystemKey) (any, bool) {
	c.systemMu.RLock()
	defer c.systemMu.RUnlock()

	value, ok := c.system[key]

	return value, ok
}

// SetResult stores the result of a node and advances the trace.
func (c *Context) SetResult(result models.NodeResult) {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.results[result.NodeID]; !seen {
		c.executed = append(c.executed, result.NodeID)
	}

	c.results[result.NodeID] = result

	c.trace.PreviousResult = c.trace.LastResult
	stored := result
	c.trace.LastResult = &stored
}

// Result returns the stored result of a node.
func (c *Context) Result(nodeID string) (models.NodeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.results[nodeID]

	return result, ok
}

// Results returns a copy of every stored node result.
func (c *Context) Results() map[string]models.NodeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]models.NodeResult, len(c.results))
	for k, v := range c.results {
		results[k] = v
	}

	return results
}

// ExecutedNodeIDs returns the nodes that produced a result, in first-completion order.
func (c *Context) ExecutedNodeIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]string(nil), c.executed...)
}

// UserInput returns the input the run was started with.
func (c *Context) UserInput() models.UserInput {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.userInput
}

// SetUserInput replaces the run input.
func (c *Context) SetUserInput(input models.UserInput) {
	if input.Normalized == "" {
		input.Normalized = NormalizeInput(input.Raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.userInput = input
}

// AppendMessage adds a message to the history.
func (c *Context) AppendMessage(msg models.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.trace.History = append(c.trace.History, msg)
}

// History returns a copy of the message history in insertion order.
func (c *Context) History() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]models.Message(nil), c.trace.History...)
}

// Trace returns a copy of the trace.
func (c *Context) Trace() Trace {
	c.mu.RLock()
	defer c.mu.RUnlock()

	trace := Trace{History: append([]models.Message(nil), c.trace.History...)}

	if c.trace.LastResult != nil {
		last := *c.trace.LastResult
		trace.LastResult = &last
	}

	if c.trace.PreviousResult != nil {
		previous := *c.trace.PreviousResult
		trace.PreviousResult = &previous
	}

	return trace
}

// Review returns the human review state.
func (c *Context) Review() models.HumanReview {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.review
}

// SetReview replaces the human review state.
func (c *Context) SetReview(review models.HumanReview) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.review = review
}

// SetPendingRequest records the request a node paused with.
func (c *Context) SetPendingRequest(request *models.HumanInterventionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.review.PendingRequest = request
}

// ClearReview drops any decision and pending request.
func (c *Context) ClearReview() {
	c.SetReview(models.HumanReview{})
}

// Progress returns the completed and total node counts.
func (c *Context) Progress() models.Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.progress
}

// IncrementProgress counts one more completed node.
func (c *Context) IncrementProgress() models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.progress.Current++

	return c.progress
}

// SetProgress overrides the progress counters.
func (c *Context) SetProgress(progress models.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.progress = progress
}

// TemplateData exposes the context to prompt and condition templates:
// input, results, variables, history, last and review.
func (c *Context) TemplateData() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]any, len(c.results))
	for id, result := range c.results {
		results[id] = map[string]any{
			"content": result.Content,
			"text":    result.Text(),
			"data":    result.Data,
			"status":  string(result.Status),
		}
	}

	history := make([]map[string]any, 0, len(c.trace.History))
	for _, msg := range c.trace.History {
		history = append(history, map[string]any{"role": msg.Role, "content": msg.Content, "node_id": msg.NodeID})
	}

	data := map[string]any{
		"execution_id":    c.ExecutionID,
		"conversation_id": c.ConversationID,
		"input": map[string]any{
			"raw":        c.userInput.Raw,
			"normalized": c.userInput.Normalized,
		},
		"results":   results,
		"variables": copyMap(c.variables),
		"history":   history,
		"progress": map[string]any{
			"current": c.progress.Current,
			"total":   c.progress.Total,
		},
	}

	if c.trace.LastResult != nil {
		data["last"] = c.trace.LastResult.Text()
	}

	review := map[string]any{"comments": c.review.Comments, "node_id": c.review.NodeID}
	if c.review.Approved != nil {
		review["approved"] = *c.review.Approved
	}

	data["review"] = review

	return data
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
