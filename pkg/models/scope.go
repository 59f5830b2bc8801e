package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Scope is the layered variable environment visible to expression
// evaluation: trigger input (write-once at start), named node outputs,
// execution context (caller identity, org id), and a stack of per-loop-
// iteration binding frames. Name collisions resolve innermost loop frame
// first, then variables, then context, then trigger input.
type Scope struct {
	TriggerInput map[string]any `json:"trigger_input,omitempty"`
	Variables    map[string]any `json:"variables,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	LoopFrames   []*LoopFrame   `json:"loop_frames,omitempty"`
}

// NewScope builds a scope with its own deep copies of the trigger input and
// context maps, so later caller mutation cannot leak into a running instance.
func NewScope(triggerInput, context map[string]any) *Scope {
	return &Scope{
		TriggerInput: DeepCopyMap(triggerInput),
		Variables:    make(map[string]any),
		Context:      DeepCopyMap(context),
	}
}

// Hash returns a hex digest of the scope's canonical JSON form. History
// entries record it so an auditor can tell which snapshot a step executed
// against. encoding/json sorts map keys, so equal scopes hash equal.
func (s *Scope) Hash() string {
	if s == nil {
		return ""
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:])
}

// InnermostFrame returns the top loop frame, or nil outside any loop.
func (s *Scope) InnermostFrame() *LoopFrame {
	if len(s.LoopFrames) == 0 {
		return nil
	}

	return s.LoopFrames[len(s.LoopFrames)-1]
}

// FrameFor returns the top frame belonging to the given loop node, or nil.
// Nested loops each push their own frame, so only the top frame of a node is
// ever advanced.
func (s *Scope) FrameFor(loopNodeID string) *LoopFrame {
	for i := len(s.LoopFrames) - 1; i >= 0; i-- {
		if s.LoopFrames[i].NodeID == loopNodeID {
			return s.LoopFrames[i]
		}
	}

	return nil
}

// PushFrame pushes a loop frame onto the stack.
func (s *Scope) PushFrame(frame *LoopFrame) {
	s.LoopFrames = append(s.LoopFrames, frame)
}

// PopFrame removes the top frame for the given loop node. Frames above it
// (from nested loops that already exited) are untouched.
func (s *Scope) PopFrame(loopNodeID string) {
	for i := len(s.LoopFrames) - 1; i >= 0; i-- {
		if s.LoopFrames[i].NodeID == loopNodeID {
			s.LoopFrames = append(s.LoopFrames[:i], s.LoopFrames[i+1:]...)
			return
		}
	}
}

// ReplaceFrame swaps the top frame of the given loop node for the next
// iteration's frame.
func (s *Scope) ReplaceFrame(frame *LoopFrame) {
	for i := len(s.LoopFrames) - 1; i >= 0; i-- {
		if s.LoopFrames[i].NodeID == frame.NodeID {
			s.LoopFrames[i] = frame
			return
		}
	}

	s.LoopFrames = append(s.LoopFrames, frame)
}

// Clone returns a deep copy. Executors run against a clone so a slow
// collaborator call never observes concurrent scope mutation.
func (s *Scope) Clone() *Scope {
	if s == nil {
		return nil
	}

	cp := &Scope{
		TriggerInput: DeepCopyMap(s.TriggerInput),
		Variables:    DeepCopyMap(s.Variables),
		Context:      DeepCopyMap(s.Context),
	}

	for _, f := range s.LoopFrames {
		items := make([]any, len(f.Items))
		for i, item := range f.Items {
			items[i] = DeepCopyValue(item)
		}

		cp.LoopFrames = append(cp.LoopFrames, &LoopFrame{
			NodeID: f.NodeID,
			Items:  items,
			Index:  f.Index,
			Item:   DeepCopyValue(f.Item),
		})
	}

	return cp
}

// DeepCopyMap deep-copies a map[string]any.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = DeepCopyValue(v)
	}

	return cp
}

// DeepCopyValue recursively copies maps and slices; primitives are returned
// as-is since they are value types.
func DeepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return DeepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = DeepCopyValue(item)
		}

		return cp
	default:
		return v
	}
}
