package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GraphDocument is the on-disk form of a graph, with nodes listed in order.
type GraphDocument struct {
	ID    string      `json:"id"    yaml:"id"`
	Name  string      `json:"name"  yaml:"name"`
	Start string      `json:"start" yaml:"start"`
	Nodes []*NodeSpec `json:"nodes" yaml:"nodes"`
	Edges []*Edge     `json:"edges" yaml:"edges"`
}

// Graph converts the document into a graph. The first node is the start node when
// none is declared.
func (d *GraphDocument) Graph() (*Graph, error) {
	graph := &Graph{
		ID:          d.ID,
		Name:        d.Name,
		Nodes:       make(map[string]*NodeSpec, len(d.Nodes)),
		Edges:       d.Edges,
		StartNodeID: d.Start,
	}

	for _, node := range d.Nodes {
		if node == nil || node.ID == "" {
			return nil, fmt.Errorf("graph %q contains a node without id", d.ID)
		}

		if _, exists := graph.Nodes[node.ID]; exists {
			return nil, fmt.Errorf("graph %q declares node %q twice", d.ID, node.ID)
		}

		graph.Nodes[node.ID] = node
	}

	if graph.StartNodeID == "" && len(d.Nodes) > 0 {
		graph.StartNodeID = d.Nodes[0].ID
	}

	for _, edge := range graph.Edges {
		if edge.Kind == "" {
			edge.Kind = EdgeKindDependency
		}
	}

	return graph, nil
}

// ParseGraph decodes a graph document. Format is "json" or "yaml".
func ParseGraph(data []byte, format string) (*Graph, error) {
	var doc GraphDocument

	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode graph json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode graph yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported graph format: %s", format)
	}

	return doc.Graph()
}

// LoadGraph reads a graph document from disk, picking the format from the extension.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", path, err)
	}

	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = "yaml"
	}

	return ParseGraph(data, format)
}
