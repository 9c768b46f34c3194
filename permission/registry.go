package permission

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownPermission is returned when a name is not in the registry.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrUnknownRole is returned when a name is not in the role table.
	ErrUnknownRole = errors.New("unknown role")
	// ErrFrozen is returned by registrations after Freeze.
	ErrFrozen = errors.New("permission table frozen")
)

// Registry is the closed set of capability names the engine recognises.
type Registry struct {
	mu     sync.RWMutex
	known  map[Permission]struct{}
	frozen bool
}

// NewRegistry creates a registry pre-populated with perms.
func NewRegistry(perms ...Permission) *Registry {
	r := &Registry{known: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		r.known[p] = struct{}{}
	}
	return r
}

// Register adds a permission name. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return "", ErrFrozen
	}

	p := Permission(normalize(name))
	if p == "" {
		return "", errors.New("permission name cannot be empty")
	}
	if _, exists := r.known[p]; exists {
		return "", fmt.Errorf("permission %q already registered", p)
	}

	r.known[p] = struct{}{}
	return p, nil
}

// Known reports whether p is registered.
func (r *Registry) Known(p Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[p]
	return ok
}

// Parse converts loose names into a Set. Any unregistered name fails the whole
// call; duplicates collapse.
func (r *Registry) Parse(names []string) (Set, error) {
	out := make(Set, len(names))
	for _, name := range names {
		p := Permission(normalize(name))
		if !r.Known(p) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, name)
		}
		out[p] = struct{}{}
	}
	return out, nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.known)
}
