// Package expr evaluates template references and expressions against the
// layered execution scope. Resolution is pure path traversal plus the
// side-effect-free expr-lang builtins: no code execution, no environment
// access, no external calls, because scope is shared state across branches.
package expr

import (
	"errors"
	"fmt"
)

// ResolutionErrorKind classifies why a reference could not be resolved.
type ResolutionErrorKind string

const (
	// KindUnbound means the referenced path does not exist in the scope.
	KindUnbound ResolutionErrorKind = "unbound"
	// KindTypeMismatch means the value resolved but had the wrong type.
	KindTypeMismatch ResolutionErrorKind = "type_mismatch"
	// KindSyntax means the reference or expression itself is malformed.
	KindSyntax ResolutionErrorKind = "syntax"
)

// ResolutionError is recoverable per node-type policy: some nodes tolerate an
// unbound path as null, others promote it to an instance failure.
type ResolutionError struct {
	Kind ResolutionErrorKind
	Expr string
	Msg  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %s (%s)", e.Expr, e.Msg, e.Kind)
}

func newResolutionError(kind ResolutionErrorKind, expr, format string, args ...any) *ResolutionError {
	return &ResolutionError{Kind: kind, Expr: expr, Msg: fmt.Sprintf(format, args...)}
}

// IsUnbound reports whether err is an unbound-path resolution error.
func IsUnbound(err error) bool {
	var rerr *ResolutionError
	return errors.As(err, &rerr) && rerr.Kind == KindUnbound
}

// IsTypeMismatch reports whether err is a type-mismatch resolution error.
func IsTypeMismatch(err error) bool {
	var rerr *ResolutionError
	return errors.As(err, &rerr) && rerr.Kind == KindTypeMismatch
}
