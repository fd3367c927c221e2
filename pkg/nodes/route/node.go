// Package route provides the node that selects one downstream branch.
package route

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/agentgraph/pkg/conditions"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
)

// Rule sends the run to Target when When renders to a truthy value.
type Rule struct {
	When   string
	Target string
}

// RouteNode always returns a route outcome naming one candidate or protocol.RouteStop.
// Rules are tried first, then the executor answer, then the configured default.
type RouteNode struct {
	spec       *models.NodeSpec
	executor   protocol.NodeExecutor
	candidates []string
	names      map[string]string
	rules      []Rule
	fallback   string
}

// NewRouteNode builds a router over the targets of its conditional edges.
func NewRouteNode(spec *models.NodeSpec, graph *models.Graph, executor protocol.NodeExecutor) (*RouteNode, error) {
	node := &RouteNode{
		spec:     spec,
		executor: executor,
		names:    map[string]string{},
		fallback: nodes.ConfigString(spec, "default", protocol.RouteStop),
	}

	if graph != nil {
		node.candidates = graph.Candidates(spec.ID)
		for _, id := range node.candidates {
			if target := graph.Node(id); target != nil && target.Name != "" {
				node.names[strings.ToLower(target.Name)] = id
			}
		}
	}

	rules, err := parseRules(spec.Config["rules"])
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if !node.isDecision(rule.Target) {
			return nil, fmt.Errorf("rule target %q is not a candidate of %s", rule.Target, spec.ID)
		}
	}

	if !node.isDecision(node.fallback) {
		return nil, fmt.Errorf("default %q is not a candidate of %s", node.fallback, spec.ID)
	}

	node.rules = rules

	return node, nil
}

func (n *RouteNode) ID() string {
	return n.spec.ID
}

func (n *RouteNode) Type() models.NodeType {
	return models.NodeTypeRoute
}

// Candidates returns the ids this router chooses between.
func (n *RouteNode) Candidates() []string {
	return append([]string(nil), n.candidates...)
}

func (n *RouteNode) Execute(ctx context.Context, in protocol.Input) (protocol.Outcome, error) {
	data := in.Context.TemplateData()

	for _, rule := range n.rules {
		matched, err := conditions.Evaluate(rule.When, data)
		if err != nil {
			return protocol.Outcome{}, nodes.NewExecutionError(n.spec.ID, "failed to evaluate rule", err)
		}

		if matched {
			return protocol.Route(rule.Target, map[string]any{"matched_by": "rule"}), nil
		}
	}

	if n.executor != nil && nodes.ConfigString(n.spec, nodes.PromptKey, "") != "" {
		req, err := nodes.BuildRequest(n.spec, in.Context)
		if err != nil {
			return protocol.Outcome{}, err
		}

		req.Config = withCandidates(n.spec.Config, n.candidates)

		output, err := nodes.Call(ctx, n.executor, n.spec, req, in.Stream)
		if err != nil {
			return protocol.Outcome{}, err
		}

		if decision, ok := n.match(output.Content); ok {
			return protocol.Route(decision, map[string]any{"matched_by": "executor", "answer": output.Content}), nil
		}

		in.Log().WarnContext(ctx, "Router answer matched no candidate, using default", "answer", output.Content, "default", n.fallback)
	}

	return protocol.Route(n.fallback, map[string]any{"matched_by": "default"}), nil
}

// match maps an executor answer to a candidate id, a candidate name or stop.
func (n *RouteNode) match(answer string) (string, bool) {
	answer = strings.ToLower(strings.Trim(strings.TrimSpace(answer), `"'.`))

	if answer == protocol.RouteStop {
		return protocol.RouteStop, true
	}

	for _, id := range n.candidates {
		if strings.ToLower(id) == answer {
			return id, true
		}
	}

	if id, ok := n.names[answer]; ok {
		return id, true
	}

	return "", false
}

func (n *RouteNode) isDecision(decision string) bool {
	if decision == protocol.RouteStop {
		return true
	}

	for _, id := range n.candidates {
		if id == decision {
			return true
		}
	}

	return false
}

func parseRules(raw any) ([]Rule, error) {
	if raw == nil {
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("rules must be a list")
	}

	rules := make([]Rule, 0, len(list))

	for i, item := range list {
		entry, isMap := item.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("rules[%d] must be an object", i)
		}

		when, _ := entry["when"].(string)
		target, _ := entry["target"].(string)

		if target == "" {
			return nil, fmt.Errorf("rules[%d] is missing target", i)
		}

		rules = append(rules, Rule{When: when, Target: target})
	}

	return rules, nil
}

func withCandidates(config map[string]any, candidates []string) map[string]any {
	out := make(map[string]any, len(config)+1)
	for k, v := range config {
		out[k] = v
	}

	out["candidates"] = append(append([]string(nil), candidates...), protocol.RouteStop)

	return out
}
