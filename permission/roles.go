package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Role is the closed enum of principal roles. The built-in values below cover
// the stock deployment; further roles are added through [RoleTable.Register]
// before the table is frozen.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleInspector Role = "inspector"
	RoleUser      Role = "user"
)

// RoleTable maps each role to the default permission set granted at issuance.
// This is the single source of truth for the authorisation model.
type RoleTable struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[Role]Set
	frozen bool
}

// NewRoleTable creates an empty table whose permission names are checked
// against registry.
func NewRoleTable(registry *Registry) *RoleTable {
	return &RoleTable{
		registry: registry,
		roles:    make(map[Role]Set),
	}
}

// DefaultRoleTable returns the stock table:
//
//	admin:     read, write, delete, admin
//	inspector: read, write
//	user:      read
//
// The returned table is not frozen so callers may extend it.
func DefaultRoleTable() *RoleTable {
	t := NewRoleTable(NewRegistry(Read, Write, Delete, Admin))
	_ = t.Register(RoleAdmin, Read, Write, Delete, Admin)
	_ = t.Register(RoleInspector, Read, Write)
	_ = t.Register(RoleUser, Read)
	return t
}

// Register binds role to its default permissions.
func (t *RoleTable) Register(role Role, perms ...Permission) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrFrozen
	}

	role = Role(normalize(string(role)))
	if role == "" {
		return errors.New("role name empty")
	}
	if _, exists := t.roles[role]; exists {
		return fmt.Errorf("role %q already registered", role)
	}

	set := make(Set, len(perms))
	for _, p := range perms {
		if !t.registry.Known(p) {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, p)
		}
		set[p] = struct{}{}
	}

	t.roles[role] = set
	return nil
}

// Parse validates a loose role name against the table.
func (t *RoleTable) Parse(name string) (Role, error) {
	role := Role(normalize(name))

	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.roles[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return role, nil
}

// Defaults returns a copy of the default permission set for role.
func (t *RoleTable) Defaults(role Role) (Set, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.roles[role]
	if !ok {
		return nil, false
	}
	return set.Clone(), true
}

// Clamp narrows requested to the role's defaults. An empty request yields the
// full default set. Unknown roles clamp to the empty set.
func (t *RoleTable) Clamp(role Role, requested Set) Set {
	defaults, ok := t.Defaults(role)
	if !ok {
		return make(Set)
	}
	if len(requested) == 0 {
		return defaults
	}
	return requested.Intersect(defaults)
}

// ParsePermissions validates names against the permission registry.
func (t *RoleTable) ParsePermissions(names []string) (Set, error) {
	return t.registry.Parse(names)
}

// Roles lists the registered roles in lexical order.
func (t *RoleTable) Roles() []Role {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Role, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Freeze prevents further role and permission registrations.
func (t *RoleTable) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
	t.registry.Freeze()
}
