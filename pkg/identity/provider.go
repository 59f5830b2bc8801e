package identity

import (
	"context"
	"errors"
)

// ErrNoManager is returned by DirectoryProvider.ManagerOf when the user has
// no manager (top of the chain).
var ErrNoManager = errors.New("user has no manager")

// ErrNotSupported is returned by providers for optional capabilities their
// backend cannot answer.
var ErrNotSupported = errors.New("directory capability not supported")

// DirectoryProvider is the external collaborator resolving organizational
// relationships. ManagerOf is the only required method; backends advertise
// the optional capabilities by also implementing the narrower directory
// interfaces below.
type DirectoryProvider interface {
	ManagerOf(ctx context.Context, userID string) (string, error)
}

// DepartmentDirectory is the optional department capability.
type DepartmentDirectory interface {
	DepartmentOf(ctx context.Context, userID string) (string, error)
	ManagerOfDepartment(ctx context.Context, departmentID string) (string, error)
	MembersOfDepartment(ctx context.Context, departmentID string) ([]string, error)
}

// RoleDirectory is the optional role capability.
type RoleDirectory interface {
	MembersWithRole(ctx context.Context, roleID string) ([]string, error)
}

// GroupDirectory is the optional group capability.
type GroupDirectory interface {
	MembersInGroup(ctx context.Context, groupID string) ([]string, error)
}

// StaticConfig seeds a StaticProvider.
type StaticConfig struct {
	Managers           map[string]string   // user id -> manager id
	Departments        map[string]string   // user id -> department id
	DepartmentManagers map[string]string   // department id -> head user id
	DepartmentMembers  map[string][]string // department id -> member ids
	Roles              map[string][]string // role id -> member ids
	Groups             map[string][]string // group id -> member ids
}

// StaticProvider answers directory queries from in-memory maps. Used by the
// tests and as the fallback backend for single-tenant deployments.
type StaticProvider struct {
	cfg StaticConfig
}

func NewStaticProvider(cfg StaticConfig) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

func (p *StaticProvider) ManagerOf(_ context.Context, userID string) (string, error) {
	manager, ok := p.cfg.Managers[userID]
	if !ok || manager == "" {
		return "", ErrNoManager
	}

	return manager, nil
}

func (p *StaticProvider) DepartmentOf(_ context.Context, userID string) (string, error) {
	dept, ok := p.cfg.Departments[userID]
	if !ok {
		return "", ErrNotSupported
	}

	return dept, nil
}

func (p *StaticProvider) ManagerOfDepartment(_ context.Context, departmentID string) (string, error) {
	head, ok := p.cfg.DepartmentManagers[departmentID]
	if !ok {
		return "", ErrNotSupported
	}

	return head, nil
}

func (p *StaticProvider) MembersOfDepartment(_ context.Context, departmentID string) ([]string, error) {
	return p.cfg.DepartmentMembers[departmentID], nil
}

func (p *StaticProvider) MembersWithRole(_ context.Context, roleID string) ([]string, error) {
	return p.cfg.Roles[roleID], nil
}

func (p *StaticProvider) MembersInGroup(_ context.Context, groupID string) ([]string, error) {
	return p.cfg.Groups[groupID], nil
}
