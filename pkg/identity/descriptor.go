// Package identity resolves abstract assignee descriptors into concrete user
// id sets by querying a pluggable directory provider. The engine never learns
// which backend (internal store, LDAP, HR API) answered.
package identity

import (
	"errors"
	"fmt"
)

// DescriptorType enumerates the supported assignee descriptor variants.
type DescriptorType string

const (
	TypeStatic            DescriptorType = "static"
	TypeDynamicManager    DescriptorType = "dynamic_manager"
	TypeManagementChain   DescriptorType = "management_chain"
	TypeDepartmentManager DescriptorType = "department_manager"
	TypeDepartmentMembers DescriptorType = "department_members"
	TypeRole              DescriptorType = "role"
	TypeGroup             DescriptorType = "group"
	TypeExpression        DescriptorType = "expression"
)

// Descriptor is a declarative, identity-source-agnostic specification of who
// should approve or receive something.
type Descriptor struct {
	Type         DescriptorType `json:"type"                    validate:"required"`
	UserIDs      []string       `json:"user_ids,omitempty"`      // static
	Level        int            `json:"level,omitempty"`         // management_chain, >= 2
	DepartmentID string         `json:"department_id,omitempty"` // department_members
	RoleIDs      []string       `json:"role_ids,omitempty"`      // role
	GroupIDs     []string       `json:"group_ids,omitempty"`     // group
	Expression   string         `json:"expression,omitempty"`    // expression
}

var errInvalidDescriptor = errors.New("invalid assignee descriptor")

// Validate checks structural requirements per variant.
func (d Descriptor) Validate() error {
	switch d.Type {
	case TypeStatic:
		if len(d.UserIDs) == 0 {
			return fmt.Errorf("%w: static descriptor needs user_ids", errInvalidDescriptor)
		}
	case TypeDynamicManager, TypeDepartmentManager:
	case TypeManagementChain:
		if d.Level < 2 {
			return fmt.Errorf("%w: management_chain level must be >= 2, got %d", errInvalidDescriptor, d.Level)
		}
	case TypeDepartmentMembers:
		if d.DepartmentID == "" {
			return fmt.Errorf("%w: department_members descriptor needs department_id", errInvalidDescriptor)
		}
	case TypeRole:
		if len(d.RoleIDs) == 0 {
			return fmt.Errorf("%w: role descriptor needs role_ids", errInvalidDescriptor)
		}
	case TypeGroup:
		if len(d.GroupIDs) == 0 {
			return fmt.Errorf("%w: group descriptor needs group_ids", errInvalidDescriptor)
		}
	case TypeExpression:
		if d.Expression == "" {
			return fmt.Errorf("%w: expression descriptor needs an expression", errInvalidDescriptor)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", errInvalidDescriptor, d.Type)
	}

	return nil
}

// DescriptorFromConfig builds a Descriptor from a node config document.
func DescriptorFromConfig(config map[string]any) (Descriptor, error) {
	d := Descriptor{}

	typ, _ := config["type"].(string)
	d.Type = DescriptorType(typ)

	d.UserIDs = stringList(config["user_ids"])
	d.RoleIDs = stringList(config["role_ids"])
	d.GroupIDs = stringList(config["group_ids"])

	if level, ok := config["level"].(float64); ok {
		d.Level = int(level)
	} else if level, ok := config["level"].(int); ok {
		d.Level = level
	}

	d.DepartmentID, _ = config["department_id"].(string)
	d.Expression, _ = config["expression"].(string)

	return d, d.Validate()
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}
