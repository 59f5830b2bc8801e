// Package validation checks process definitions at load/publish time.
// Everything here is a DefinitionError: malformed graphs are rejected before
// any execution instance exists, never at runtime.
package validation

import (
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
)

// DefinitionError describes one structural problem in a definition graph.
type DefinitionError struct {
	DefinitionID string
	NodeID       string
	Msg          string
}

func (e *DefinitionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("invalid definition %s: node %s: %s", e.DefinitionID, e.NodeID, e.Msg)
	}

	return fmt.Sprintf("invalid definition %s: %s", e.DefinitionID, e.Msg)
}

func defErr(def *models.ProcessDefinition, nodeID, format string, args ...any) *DefinitionError {
	return &DefinitionError{
		DefinitionID: def.ID,
		NodeID:       nodeID,
		Msg:          fmt.Sprintf(format, args...),
	}
}

// ValidateDefinition enforces the structural invariants of a process graph:
// exactly one entry and one End, every non-End node has an outgoing edge,
// Condition nodes have exactly yes/no exits, Parallel nodes have >= 2
// branches and a join every branch reaches, the End is reachable from every
// node, and the only cycles run through Loop nodes.
func ValidateDefinition(def *models.ProcessDefinition) error {
	if len(def.Nodes) == 0 {
		return defErr(def, "", "definition has no nodes")
	}

	byID := make(map[string]*models.Node, len(def.Nodes))

	for _, n := range def.Nodes {
		if n.ID == "" {
			return defErr(def, "", "node with empty id")
		}
		if _, dup := byID[n.ID]; dup {
			return defErr(def, n.ID, "duplicate node id")
		}
		if !n.Kind.Valid() {
			return defErr(def, n.ID, "unknown node kind %q", n.Kind)
		}

		byID[n.ID] = n
	}

	for _, e := range def.Edges {
		if byID[e.From] == nil {
			return defErr(def, e.From, "edge from unknown node")
		}
		if byID[e.To] == nil {
			return defErr(def, e.To, "edge to unknown node")
		}
	}

	if err := checkEntryAndEnd(def); err != nil {
		return err
	}

	for _, n := range def.Nodes {
		if err := checkNodeEdges(def, n); err != nil {
			return err
		}
	}

	if err := checkEndReachable(def, byID); err != nil {
		return err
	}

	if err := checkCycles(def, byID); err != nil {
		return err
	}

	return checkParallelBranches(def, byID)
}

func checkEntryAndEnd(def *models.ProcessDefinition) error {
	var entries, ends int

	for _, n := range def.Nodes {
		switch n.Kind {
		case models.KindStart, models.KindForm:
			entries++
		case models.KindEnd:
			ends++
		}
	}

	if entries != 1 {
		return defErr(def, "", "expected exactly one Start/Form node, found %d", entries)
	}
	if ends != 1 {
		return defErr(def, "", "expected exactly one End node, found %d", ends)
	}

	return nil
}

func checkNodeEdges(def *models.ProcessDefinition, n *models.Node) error {
	out := def.OutgoingEdges(n.ID)

	switch n.Kind {
	case models.KindEnd:
		if len(out) != 0 {
			return defErr(def, n.ID, "End node must have no outgoing edges")
		}
	case models.KindCondition:
		if len(out) != 2 || def.EdgeByLabel(n.ID, models.EdgeYes) == nil || def.EdgeByLabel(n.ID, models.EdgeNo) == nil {
			return defErr(def, n.ID, "Condition node needs exactly two outgoing edges labeled yes/no")
		}
	case models.KindParallel:
		if len(out) < 2 {
			return defErr(def, n.ID, "Parallel node needs at least two outgoing branches")
		}

		join, _ := n.Config["join"].(string)
		if join == "" {
			return defErr(def, n.ID, "Parallel node needs a designated join node")
		}
		if def.NodeByID(join) == nil {
			return defErr(def, n.ID, "Parallel join references unknown node %q", join)
		}

		var endID string
		for _, cand := range def.Nodes {
			if cand.Kind == models.KindEnd {
				endID = cand.ID
			}
		}

		for _, branch := range out {
			if !reaches(def, branch.To, join, n.ID) {
				return defErr(def, n.ID, "branch via %s never reaches join %s", branch.To, join)
			}
			// Every path out of a branch must funnel through the join.
			// A route to End that sidesteps it would complete the
			// instance while sibling branches are still live.
			if endID != "" && join != endID && reaches(def, branch.To, endID, join) {
				return defErr(def, n.ID, "branch via %s can reach End bypassing join %s", branch.To, join)
			}
		}
	case models.KindApproval:
		if def.EdgeByLabel(n.ID, models.EdgeApprove) == nil || def.EdgeByLabel(n.ID, models.EdgeReject) == nil {
			return defErr(def, n.ID, "Approval node needs approve and reject edges")
		}
	case models.KindLoop:
		if def.EdgeByLabel(n.ID, models.EdgeLoopBody) == nil || def.EdgeByLabel(n.ID, models.EdgeLoopExit) == nil {
			return defErr(def, n.ID, "Loop node needs body and exit edges")
		}
	default:
		if len(out) < 1 {
			return defErr(def, n.ID, "non-End node needs at least one outgoing edge")
		}
	}

	return nil
}

// reaches reports whether target is reachable from start without passing
// through the forking parallel node again.
func reaches(def *models.ProcessDefinition, start, target, skip string) bool {
	seen := map[string]bool{skip: true}
	stack := []string{start}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}

		seen[cur] = true

		for _, e := range def.OutgoingEdges(cur) {
			stack = append(stack, e.To)
		}
	}

	return false
}

func checkEndReachable(def *models.ProcessDefinition, byID map[string]*models.Node) error {
	var endID string

	for _, n := range def.Nodes {
		if n.Kind == models.KindEnd {
			endID = n.ID
		}
	}

	for _, n := range def.Nodes {
		if n.ID == endID {
			continue
		}
		if !reaches(def, n.ID, endID, "") {
			return defErr(def, n.ID, "End node unreachable from this node")
		}
	}

	return nil
}

// checkCycles rejects any cycle that does not pass through a Loop node.
// Loop bodies are bounded re-entrant subgraphs, so an edge returning to a
// Loop node is the single legal back edge shape.
func checkCycles(def *models.ProcessDefinition, byID map[string]*models.Node) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(def.Nodes))
	onPath := make([]string, 0, len(def.Nodes))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		onPath = append(onPath, id)

		for _, e := range def.OutgoingEdges(id) {
			switch color[e.To] {
			case gray:
				if !cycleHasLoop(byID, onPath, e.To) {
					return defErr(def, e.To, "cycle without a Loop node")
				}
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			}
		}

		color[id] = black
		onPath = onPath[:len(onPath)-1]

		return nil
	}

	for _, n := range def.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

func cycleHasLoop(byID map[string]*models.Node, onPath []string, backTo string) bool {
	inCycle := false

	for _, id := range onPath {
		if id == backTo {
			inCycle = true
		}
		if inCycle && byID[id].Kind == models.KindLoop {
			return true
		}
	}

	return false
}

// checkParallelBranches rejects two branches of the same fork writing the
// same output variable: key-level isolation is what lets branches advance
// without contending on scope.variables.
func checkParallelBranches(def *models.ProcessDefinition, byID map[string]*models.Node) error {
	for _, n := range def.Nodes {
		if n.Kind != models.KindParallel {
			continue
		}

		join, _ := n.Config["join"].(string)
		writers := make(map[string]string) // output variable -> first branch entry

		for _, branch := range def.OutgoingEdges(n.ID) {
			for _, member := range branchNodes(def, branch.To, join, n.ID) {
				ov := byID[member].OutputVariable
				if ov == "" {
					continue
				}
				if prev, taken := writers[ov]; taken && prev != branch.To {
					return defErr(def, n.ID,
						"parallel branches via %s and %s both write output variable %q", prev, branch.To, ov)
				}

				writers[ov] = branch.To
			}
		}
	}

	return nil
}

// branchNodes collects the node ids between a branch entry and the join.
func branchNodes(def *models.ProcessDefinition, start, join, fork string) []string {
	seen := map[string]bool{join: true, fork: true}
	stack := []string{start}

	var out []string

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[cur] {
			continue
		}

		seen[cur] = true
		out = append(out, cur)

		for _, e := range def.OutgoingEdges(cur) {
			stack = append(stack, e.To)
		}
	}

	return out
}
