package registry

import (
	"github.com/dukex/agentgraph/pkg/nodes/act"
	"github.com/dukex/agentgraph/pkg/nodes/human"
	"github.com/dukex/agentgraph/pkg/nodes/plan"
	"github.com/dukex/agentgraph/pkg/nodes/react"
	"github.com/dukex/agentgraph/pkg/nodes/route"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	r.RegisterNode(plan.NewPlanNodeFactory())
	r.RegisterNode(act.NewActNodeFactory())
	r.RegisterNode(route.NewRouteNodeFactory())
	r.RegisterNode(human.NewHumanNodeFactory())
	r.RegisterNode(react.NewReactNodeFactory())
}

// NewDefaultRegistry returns a registry with every built-in node type.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(nil)
	r.RegisterDefaultNodes()

	return r
}
