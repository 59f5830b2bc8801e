package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/arionlabs/arion/pkg/expr"
	"github.com/arionlabs/arion/pkg/models"
)

// ErrNoAssignees is returned when a descriptor resolves to an empty set.
var ErrNoAssignees = errors.New("descriptor resolved to no assignees")

// ChainExhaustedError is returned when a management chain walk hits the top
// of the org before reaching the requested level. The caller decides whether
// to escalate or fail the node; the resolver never silently falls back to a
// lower-level manager.
type ChainExhaustedError struct {
	RequesterID string
	WantLevel   int
	Reached     int
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("management chain for %s exhausted at level %d (wanted %d)",
		e.RequesterID, e.Reached, e.WantLevel)
}

// IsChainExhausted reports whether err is a chain-exhausted resolution error.
func IsChainExhausted(err error) bool {
	var cerr *ChainExhaustedError
	return errors.As(err, &cerr)
}

// Resolver turns assignee descriptors into concrete user id sets.
type Resolver struct {
	directory DirectoryProvider
	exprs     *expr.Resolver
	logger    *slog.Logger
}

func NewResolver(directory DirectoryProvider, exprs *expr.Resolver, logger *slog.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		exprs:     exprs,
		logger:    logger.With("module", "identity_resolver"),
	}
}

// Resolve produces the deduplicated, sorted set of user ids a descriptor
// names, relative to the requester. Expression descriptors evaluate against
// the given scope; other variants ignore it.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor, requesterID string, scope *models.Scope) ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var (
		ids []string
		err error
	)

	switch d.Type {
	case TypeStatic:
		ids = d.UserIDs
	case TypeDynamicManager:
		ids, err = r.walkChain(ctx, requesterID, 1)
	case TypeManagementChain:
		ids, err = r.walkChain(ctx, requesterID, d.Level-1)
	case TypeDepartmentManager:
		ids, err = r.departmentManager(ctx, requesterID)
	case TypeDepartmentMembers:
		ids, err = r.departmentMembers(ctx, d.DepartmentID)
	case TypeRole:
		ids, err = r.roleMembers(ctx, d.RoleIDs)
	case TypeGroup:
		ids, err = r.groupMembers(ctx, d.GroupIDs)
	case TypeExpression:
		ids, err = r.fromExpression(d.Expression, scope)
	}

	if err != nil {
		return nil, err
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: descriptor type %s", ErrNoAssignees, d.Type)
	}

	return ids, nil
}

// walkChain follows the manager edge the given number of hops from the
// requester. Hops is level-1 for management_chain descriptors and 1 for the
// direct manager.
func (r *Resolver) walkChain(ctx context.Context, requesterID string, hops int) ([]string, error) {
	current := requesterID

	for i := range hops {
		manager, err := r.directory.ManagerOf(ctx, current)
		if errors.Is(err, ErrNoManager) {
			return nil, &ChainExhaustedError{RequesterID: requesterID, WantLevel: hops + 1, Reached: i + 1}
		}
		if err != nil {
			return nil, fmt.Errorf("directory lookup for %s: %w", current, err)
		}

		current = manager
	}

	return []string{current}, nil
}

func (r *Resolver) departmentManager(ctx context.Context, requesterID string) ([]string, error) {
	dir, ok := r.directory.(DepartmentDirectory)
	if !ok {
		return nil, fmt.Errorf("department_manager: %w", ErrNotSupported)
	}

	dept, err := dir.DepartmentOf(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("department of %s: %w", requesterID, err)
	}

	head, err := dir.ManagerOfDepartment(ctx, dept)
	if err != nil {
		return nil, fmt.Errorf("manager of department %s: %w", dept, err)
	}

	return []string{head}, nil
}

func (r *Resolver) departmentMembers(ctx context.Context, departmentID string) ([]string, error) {
	dir, ok := r.directory.(DepartmentDirectory)
	if !ok {
		return nil, fmt.Errorf("department_members: %w", ErrNotSupported)
	}

	return dir.MembersOfDepartment(ctx, departmentID)
}

func (r *Resolver) roleMembers(ctx context.Context, roleIDs []string) ([]string, error) {
	dir, ok := r.directory.(RoleDirectory)
	if !ok {
		return nil, fmt.Errorf("role: %w", ErrNotSupported)
	}

	var ids []string

	for _, roleID := range roleIDs {
		members, err := dir.MembersWithRole(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("members with role %s: %w", roleID, err)
		}

		ids = append(ids, members...)
	}

	return ids, nil
}

func (r *Resolver) groupMembers(ctx context.Context, groupIDs []string) ([]string, error) {
	dir, ok := r.directory.(GroupDirectory)
	if !ok {
		return nil, fmt.Errorf("group: %w", ErrNotSupported)
	}

	var ids []string

	for _, groupID := range groupIDs {
		members, err := dir.MembersInGroup(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("members in group %s: %w", groupID, err)
		}

		ids = append(ids, members...)
	}

	return ids, nil
}

// fromExpression resolves an expression descriptor: the value must be a user
// id string or a list of them.
func (r *Resolver) fromExpression(expression string, scope *models.Scope) ([]string, error) {
	val, err := r.exprs.Resolve(expression, scope)
	if err != nil {
		return nil, err
	}

	switch v := val.(type) {
	case string:
		if v == "" {
			return nil, nil
		}

		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expression %q resolved to non-string assignee %T", expression, item)
			}

			ids = append(ids, s)
		}

		return ids, nil
	default:
		return nil, fmt.Errorf("expression %q resolved to %T, want user id or list", expression, val)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}
