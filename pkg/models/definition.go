// Package models defines the core domain models for process definitions and
// their running execution instances.
package models

import "time"

// NodeKind identifies the typed step a node represents. The set is closed:
// the node registry registers exactly one executor per kind and definition
// validation rejects anything else, so an unknown kind never reaches runtime.
type NodeKind string

const (
	KindStart        NodeKind = "start"
	KindForm         NodeKind = "form"
	KindCondition    NodeKind = "condition"
	KindLoop         NodeKind = "loop"
	KindParallel     NodeKind = "parallel"
	KindDelay        NodeKind = "delay"
	KindApproval     NodeKind = "approval"
	KindNotification NodeKind = "notification"
	KindAITask       NodeKind = "ai_task"
	KindTool         NodeKind = "tool"
	KindCallProcess  NodeKind = "call_process"
	KindEnd          NodeKind = "end"
)

// AllNodeKinds returns every valid node kind, in a stable order.
func AllNodeKinds() []NodeKind {
	return []NodeKind{
		KindStart, KindForm, KindCondition, KindLoop, KindParallel, KindDelay,
		KindApproval, KindNotification, KindAITask, KindTool, KindCallProcess, KindEnd,
	}
}

func (k NodeKind) Valid() bool {
	for _, known := range AllNodeKinds() {
		if k == known {
			return true
		}
	}

	return false
}

// Edge labels disambiguate multi-exit nodes.
const (
	EdgeYes      = "yes"
	EdgeNo       = "no"
	EdgeApprove  = "approve"
	EdgeReject   = "reject"
	EdgeTimeout  = "timeout"
	EdgeLoopBody = "body"
	EdgeLoopExit = "exit"
)

// Node represents one typed step in a process definition.
type Node struct {
	ID             string         `json:"id"              validate:"required"`
	Kind           NodeKind       `json:"kind"            validate:"required"`
	Name           string         `json:"name"`
	Config         map[string]any `json:"config"`
	OutputVariable string         `json:"output_variable,omitempty"`
	Enabled        bool           `json:"enabled"`
}

// Edge connects two nodes. Label disambiguates multi-exit nodes: "yes"/"no"
// for Condition, "approve"/"reject"/"timeout" for Approval, "body"/"exit" for
// Loop, and branch indexes ("0", "1", ...) for Parallel.
type Edge struct {
	From  string `json:"from_node" validate:"required"`
	To    string `json:"to_node"   validate:"required"`
	Label string `json:"label,omitempty"`
}

// DefinitionStatus represents the lifecycle state of a definition version.
type DefinitionStatus string

const (
	DefinitionStatusDraft       DefinitionStatus = "draft"       // Editable, not executable
	DefinitionStatusPublished   DefinitionStatus = "published"   // Current active, executable
	DefinitionStatusUnpublished DefinitionStatus = "unpublished" // Historical, not executable
)

// ProcessDefinition is an immutable (per version) graph of typed nodes.
// Publishing freezes a version; executions always bind a definition id plus
// version so an in-flight instance never sees a later edit.
type ProcessDefinition struct {
	ID             string           `json:"id"`
	GroupID        string           `json:"group_id"` // Stable ID linking all versions
	Version        int              `json:"version"`
	Name           string           `json:"name"        validate:"required,min=3"`
	Description    string           `json:"description"`
	Status         DefinitionStatus `json:"status"      validate:"required"`
	Nodes          []*Node          `json:"nodes"`
	Edges          []*Edge          `json:"edges"`
	OutputVariable string           `json:"output_variable,omitempty"` // Snapshotted at End
	Owner          string           `json:"owner"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	PublishedAt    *time.Time       `json:"published_at,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (d *ProcessDefinition) NodeByID(id string) *Node {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// OutgoingEdges returns all edges leaving the given node, in definition order.
func (d *ProcessDefinition) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, e := range d.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}

	return out
}

// EdgeByLabel returns the outgoing edge of nodeID with the given label.
func (d *ProcessDefinition) EdgeByLabel(nodeID, label string) *Edge {
	for _, e := range d.Edges {
		if e.From == nodeID && e.Label == label {
			return e
		}
	}

	return nil
}

// StartNode returns the definition's single Start node, or nil when the
// definition is malformed (validation rejects that before activation).
func (d *ProcessDefinition) StartNode() *Node {
	for _, n := range d.Nodes {
		if n.Kind == KindStart || n.Kind == KindForm {
			return n
		}
	}

	return nil
}
