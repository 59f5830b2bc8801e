package services

import "context"

// Permission names checked by the access gate. The RBAC store behind them is
// an external collaborator.
const (
	PermViewAllExecutions = "executions:view_all"
	PermCancelExecutions  = "executions:cancel"
	PermManageDefinitions = "definitions:manage"
)

// PermissionChecker answers whether a user holds a named permission.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// StaticPermissions is a map-backed PermissionChecker for tests and
// single-tenant deployments.
type StaticPermissions map[string][]string

func (p StaticPermissions) HasPermission(_ context.Context, userID, permission string) (bool, error) {
	for _, granted := range p[userID] {
		if granted == permission {
			return true, nil
		}
	}

	return false, nil
}
