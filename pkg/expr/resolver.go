package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr/vm"

	"github.com/arionlabs/arion/pkg/models"
)

// Scope roots accepted at the wire boundary. Node configs may reference
// nothing else; loop-local names (item, index) exist only inside loop bodies.
const (
	RootTriggerInput = "trigger_input"
	RootVariables    = "variables"
	RootContext      = "context"
)

const (
	loopItemName  = "item"
	loopIndexName = "index"
)

// Resolver resolves {{ path }} references and evaluates expressions against
// a Scope. Compiled expr-lang programs are cached; the Resolver is safe for
// concurrent use across instances.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]*vm.Program)}
}

// Resolve evaluates a single reference. When the input is exactly one
// {{ ... }} token the typed value is returned; otherwise the literal string
// comes back unchanged (configs mix literals and references freely).
func (r *Resolver) Resolve(raw string, scope *models.Scope) (any, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		inner := strings.TrimSpace(s[2 : len(s)-2])
		if !strings.Contains(inner, "{{") && len(inner) > 0 {
			return r.resolvePath(inner, scope)
		}
	}

	if strings.Contains(raw, "{{") {
		return r.Interpolate(raw, scope)
	}

	return raw, nil
}

// Interpolate renders every {{ }} token inside a string, stringifying the
// resolved values. Used for notification bodies and AI prompts.
func (r *Resolver) Interpolate(input string, scope *models.Scope) (string, error) {
	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "{{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + 2

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return "", newResolutionError(KindSyntax, input, "unclosed {{ reference")
		}
		end += start

		path := strings.TrimSpace(input[start:end])
		if path == "" {
			return "", newResolutionError(KindSyntax, input, "empty {{ }} reference")
		}
		if strings.Contains(path, "{{") {
			return "", newResolutionError(KindSyntax, input, "nested {{ }} not allowed")
		}

		val, err := r.resolvePath(path, scope)
		if err != nil {
			return "", err
		}

		result.WriteString(stringify(val))

		i = end + 2
	}

	return result.String(), nil
}

// resolvePath resolves one dotted path against the scope layers. Unqualified
// heads fall back through the layers with precedence loop frame > variables >
// context > trigger input.
func (r *Resolver) resolvePath(path string, scope *models.Scope) (any, error) {
	if scope == nil {
		return nil, newResolutionError(KindUnbound, path, "no scope")
	}

	head, rest, _ := strings.Cut(path, ".")

	switch head {
	case RootTriggerInput:
		return traverse(scope.TriggerInput, rest, path)
	case RootVariables:
		return traverse(scope.Variables, rest, path)
	case RootContext:
		return traverse(scope.Context, rest, path)
	case loopItemName:
		frame := scope.InnermostFrame()
		if frame == nil {
			return nil, newResolutionError(KindUnbound, path, "loop binding referenced outside a loop")
		}
		if rest == "" {
			return frame.Item, nil
		}

		return traverseValue(frame.Item, rest, path)
	case loopIndexName:
		frame := scope.InnermostFrame()
		if frame == nil {
			return nil, newResolutionError(KindUnbound, path, "loop binding referenced outside a loop")
		}

		return frame.Index, nil
	}

	// Unqualified name: resolve through the layers in precedence order.
	for _, layer := range []map[string]any{scope.Variables, scope.Context, scope.TriggerInput} {
		if layer == nil {
			continue
		}
		if _, ok := layer[head]; ok {
			return traverse(layer, path, path)
		}
	}

	return nil, newResolutionError(KindUnbound, path,
		"unknown root %q; valid roots: %s, %s, %s", head, RootTriggerInput, RootVariables, RootContext)
}

// traverse walks a dot-delimited path into a map. An empty path returns the
// whole layer.
func traverse(root map[string]any, path, full string) (any, error) {
	if path == "" {
		if root == nil {
			return map[string]any{}, nil
		}

		return root, nil
	}

	return traverseValue(root, path, full)
}

func traverseValue(current any, path, full string) (any, error) {
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, newResolutionError(KindSyntax, full, "empty path segment")
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				return nil, newResolutionError(KindUnbound, full, "field %q not found", seg)
			}

			current = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, newResolutionError(KindTypeMismatch, full, "list index %q is not a number", seg)
			}
			if idx < 0 || idx >= len(v) {
				return nil, newResolutionError(KindUnbound, full, "list index %d out of range", idx)
			}

			current = v[idx]
		case nil:
			return nil, newResolutionError(KindUnbound, full, "nil value at %q", seg)
		default:
			return nil, newResolutionError(KindTypeMismatch, full, "cannot traverse into %T at %q", current, seg)
		}
	}

	return current, nil
}

// stringify renders a resolved value for inline template output.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(b)
	}
}
