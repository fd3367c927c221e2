package models

import (
	"time"
)

// NodeResult represents the stored output of a node execution.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Content   any            `json:"content,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Status    NodeStatus     `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// Text returns the result content rendered as a string.
func (r NodeResult) Text() string {
	switch v := r.Content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return stringify(v)
	}
}

// Message is one entry of the message history of a run.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	NodeID    string    `json:"node_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleHuman     = "human"
	RoleSystem    = "system"
)

// UserInput holds the raw and normalized input the run was started with.
type UserInput struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
}

// Progress counts completed nodes against the total number of nodes.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}
