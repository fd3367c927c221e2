package registry

import (
	"context"
	"testing"

	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DefaultNodes(t *testing.T) {
	r := NewDefaultRegistry()

	assert.Equal(t, []models.NodeType{
		models.NodeTypeAct,
		models.NodeTypeHuman,
		models.NodeTypePlan,
		models.NodeTypeReact,
		models.NodeTypeRoute,
	}, r.Types())

	for _, nodeType := range r.Types() {
		factory, ok := r.Factory(nodeType)
		require.True(t, ok)
		assert.NotEmpty(t, factory.Name())
		assert.NotEmpty(t, factory.Description())
		assert.Equal(t, "object", factory.Schema()["type"])
	}
}

func TestRegistry_ValidateConfig(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		name    string
		spec    *models.NodeSpec
		wantErr bool
		field   string
	}{
		{
			name: "valid act",
			spec: testutil.CreateTestNode("a", testutil.WithConfigValue("review_output", true)),
		},
		{
			name: "nil config",
			spec: testutil.CreateTestNode("a", testutil.WithConfig(nil)),
		},
		{
			name:    "wrong type for boolean",
			spec:    testutil.CreateTestNode("a", testutil.WithConfigValue("review_output", "often")),
			wantErr: true,
			field:   "config",
		},
		{
			name:    "react budget below minimum",
			spec:    testutil.CreateTestNode("r", testutil.WithType(models.NodeTypeReact), testutil.WithConfigValue("max_iterations", 0)),
			wantErr: true,
			field:   "config",
		},
		{
			name:    "unknown type",
			spec:    testutil.CreateTestNode("x", testutil.WithType("summarize")),
			wantErr: true,
			field:   "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateConfig(tt.spec)
			if !tt.wantErr {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, graph.ErrInvalidGraph)

			var configErr *graph.GraphConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.spec.ID, configErr.NodeID)
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestRegistry_Build(t *testing.T) {
	r := NewDefaultRegistry()
	g := testutil.RouterGraph()

	built, err := r.Build(context.Background(), g, protocol.Dependencies{})
	require.NoError(t, err)
	require.Len(t, built, len(g.Nodes))

	router, ok := built["router"].(protocol.BranchingNode)
	require.True(t, ok)
	assert.Equal(t, []string{"X", "Y"}, router.Candidates())
}

func TestRegistry_BuildFactoryFailure(t *testing.T) {
	r := NewDefaultRegistry()
	g := testutil.RouterGraph()
	g.Nodes["router"].Config = map[string]any{"default": "nowhere"}

	_, err := r.Build(context.Background(), g, protocol.Dependencies{})
	require.Error(t, err)
	assert.True(t, graph.IsGraphConfigError(err))
	assert.Contains(t, err.Error(), "router")
}
