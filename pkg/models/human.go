package models

import "time"

// HumanInterventionRequest is created when a node pauses for a human decision.
type HumanInterventionRequest struct {
	ExecutionID     string                `json:"execution_id"`
	NodeID          string                `json:"node_id"`
	ConversationID  string                `json:"conversation_id"`
	Message         string                `json:"message"`
	ResultsSnapshot map[string]NodeResult `json:"results_snapshot,omitempty"`
	Phase           PausePhase            `json:"phase,omitempty"`
	AllowOutputEdit bool                  `json:"allow_output_edit"`
	CreatedAt       time.Time             `json:"created_at"`

	// Resolution, filled by resume.
	Approved       *bool      `json:"approved,omitempty"`
	Comments       string     `json:"comments,omitempty"`
	ModifiedOutput any        `json:"modified_output,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// IsResolved reports whether a decision has been recorded.
func (r *HumanInterventionRequest) IsResolved() bool {
	return r.ResolvedAt != nil && r.Approved != nil
}

// Resolve records a reviewer decision on the request.
func (r *HumanInterventionRequest) Resolve(approved bool, comments string, modifiedOutput any, at time.Time) {
	r.Approved = &approved
	r.Comments = comments
	r.ResolvedAt = &at

	if r.AllowOutputEdit {
		r.ModifiedOutput = modifiedOutput
	}
}

// HumanReview is the human-intervention part of an execution context.
type HumanReview struct {
	NodeID         string                    `json:"node_id,omitempty"`
	Approved       *bool                     `json:"approved,omitempty"`
	Comments       string                    `json:"comments,omitempty"`
	PendingRequest *HumanInterventionRequest `json:"pending_request,omitempty"`
}

// Decided reports whether a decision is present for the given node.
func (h HumanReview) Decided(nodeID string) bool {
	return h.Approved != nil && h.NodeID == nodeID
}
