package execution

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_NormalizesInput(t *testing.T) {
	c := NewContext("exec-1", "conv-1", models.UserInput{Raw: "  refund   my\torder "}, 3)

	assert.Equal(t, "  refund   my\torder ", c.UserInput().Raw)
	assert.Equal(t, "refund my order", c.UserInput().Normalized)
	assert.Equal(t, models.Progress{Current: 0, Total: 3}, c.Progress())
}

func TestContext_Variables(t *testing.T) {
	c := NewContext("exec-1", "conv-1", models.UserInput{}, 1)

	c.Set("tone", "formal")
	c.Set("retries", 2)

	assert.Equal(t, "formal", c.GetString("tone", "casual"))
	assert.Equal(t, "casual", c.GetString("missing", "casual"))
	assert.Equal(t, "fallback", c.GetString("retries", "fallback"))
	assert.Equal(t, 2, c.GetOr("retries", 0))

	vars := c.Variables()
	vars["tone"] = "changed"
	assert.Equal(t, "formal", c.GetString("tone", ""), "Variables must return a copy")
}

func TestContext_SystemKeysAreSeparate(t *testing.T) {
	c := NewContext("exec-1", "conv-1", models.UserInput{}, 1)

	c.SetSystem(SystemKeyGraph, "graph-ref")

	value, ok := c.System(SystemKeyGraph)
	require.True(t, ok)
	assert.Equal(t, "graph-ref", value)

	_, found := c.Get(string(SystemKeyGraph))
	assert.False(t, found)
	assert.Empty(t, c.Variables())
}

func TestContext_ResultsAndTrace(t *testing.T) {
	c := NewContext("exec-1", "conv-1", models.UserInput{}, 2)

	c.SetResult(models.NodeResult{NodeID: "plan", Content: "step 1", Status: models.NodeStatusSucceeded})
	c.SetResult(models.NodeResult{NodeID: "act", Content: "done", Status: models.NodeStatusSucceeded})

	trace := c.Trace()
	require.NotNil(t, trace.LastResult)
	require.NotNil(t, trace.PreviousResult)
	assert.Equal(t, "act", trace.LastResult.NodeID)
	assert.Equal(t, "plan", trace.PreviousResult.NodeID)

	// Re-running a node does not duplicate it in the execution order.
	c.SetResult(models.NodeResult{NodeID: "plan", Content: "step 2", Status: models.NodeStatusSucceeded})
	assert.Equal(t, []string{"plan", "act"}, c.ExecutedNodeIDs())

	result, ok := c.Result("plan")
	require.True(t, ok)
	assert.Equal(t, "step 2", result.Content)
	assert.False(t, result.Timestamp.IsZero())
}

func TestContext_TemplateData(t *testing.T) {
	c := NewContext("exec-1", "conv-1", models.UserInput{Raw: "hello"}, 1)
	c.Set("lang", "en")
	c.SetResult(models.NodeResult{NodeID: "classify", Content: "billing", Status: models.NodeStatusSucceeded})

	approved := true
	c.SetReview(models.HumanReview{NodeID: "gate", Approved: &approved})

	data := c.TemplateData()

	assert.Equal(t, "hello", data["input"].(map[string]any)["raw"])
	assert.Equal(t, "en", data["variables"].(map[string]any)["lang"])
	assert.Equal(t, "billing", data["results"].(map[string]any)["classify"].(map[string]any)["text"])
	assert.Equal(t, "billing", data["last"])
	assert.Equal(t, true, data["review"].(map[string]any)["approved"])
}

func TestContext_ConcurrentAccess(t *testing.T) {
	c := NewContext("exec-1", "conv-1", models.UserInput{}, 100)

	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			id := fmt.Sprintf("node-%d", i)
			c.Set(id, i)
			c.SetResult(models.NodeResult{NodeID: id, Content: i, Status: models.NodeStatusSucceeded})
			c.AppendMessage(models.Message{Role: models.RoleAssistant, Content: id, NodeID: id})
			c.IncrementProgress()
			_ = c.TemplateData()
		}(i)
	}

	wg.Wait()

	assert.Len(t, c.Results(), 100)
	assert.Len(t, c.Variables(), 100)
	assert.Len(t, c.History(), 100)
	assert.Len(t, c.ExecutedNodeIDs(), 100)
	assert.Equal(t, 100, c.Progress().Current)
}
