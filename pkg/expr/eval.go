package expr

import (
	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/arionlabs/arion/pkg/models"
)

// Evaluate compiles (or retrieves from cache) an expression and runs it
// against the flattened scope environment. Supports the full expr-lang
// grammar: comparisons, arithmetic, nil coalescing, and the builtin
// collection helpers. Evaluation is pure and never mutates the scope.
func (r *Resolver) Evaluate(expression string, scope *models.Scope) (any, error) {
	if expression == "" {
		return nil, newResolutionError(KindSyntax, expression, "empty expression")
	}

	prg, err := r.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, environment(scope))
	if err != nil {
		return nil, newResolutionError(KindUnbound, expression, "evaluation failed: %s", err.Error())
	}

	return out, nil
}

// EvaluateBool evaluates a Condition expression. A non-boolean result is a
// type mismatch, not a truthiness coercion.
func (r *Resolver) EvaluateBool(expression string, scope *models.Scope) (bool, error) {
	out, err := r.Evaluate(expression, scope)
	if err != nil {
		return false, err
	}

	b, ok := out.(bool)
	if !ok {
		return false, newResolutionError(KindTypeMismatch, expression, "expected boolean, got %T", out)
	}

	return b, nil
}

// EvaluateList evaluates a Loop collection expression.
func (r *Resolver) EvaluateList(expression string, scope *models.Scope) ([]any, error) {
	out, err := r.Evaluate(expression, scope)
	if err != nil {
		return nil, err
	}

	list, ok := out.([]any)
	if !ok {
		return nil, newResolutionError(KindTypeMismatch, expression, "expected list, got %T", out)
	}

	return list, nil
}

// environment flattens the scope layers into the expr-lang environment. The
// three roots are always present; loop bindings shadow nothing because they
// use their own reserved names.
func environment(scope *models.Scope) map[string]any {
	env := map[string]any{
		RootTriggerInput: map[string]any{},
		RootVariables:    map[string]any{},
		RootContext:      map[string]any{},
	}

	if scope == nil {
		return env
	}

	if scope.TriggerInput != nil {
		env[RootTriggerInput] = scope.TriggerInput
	}
	if scope.Variables != nil {
		env[RootVariables] = scope.Variables
	}
	if scope.Context != nil {
		env[RootContext] = scope.Context
	}

	if frame := scope.InnermostFrame(); frame != nil {
		env[loopItemName] = frame.Item
		env[loopIndexName] = frame.Index
	}

	return env
}

func (r *Resolver) getOrCompile(expression string) (*vm.Program, error) {
	r.mu.RLock()
	if prg, ok := r.cache[expression]; ok {
		r.mu.RUnlock()
		return prg, nil
	}
	r.mu.RUnlock()

	prg, err := exprlang.Compile(expression, exprlang.AllowUndefinedVariables())
	if err != nil {
		return nil, newResolutionError(KindSyntax, expression, "compile failed: %s", err.Error())
	}

	r.mu.Lock()
	r.cache[expression] = prg
	r.mu.Unlock()

	return prg, nil
}
