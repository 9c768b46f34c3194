package permission

import (
	"sort"
	"strings"
)

// Permission is a single capability string such as "read" or "delete".
type Permission string

const (
	Read   Permission = "read"
	Write  Permission = "write"
	Delete Permission = "delete"
	Admin  Permission = "admin"
)

// Set is an unordered collection of permissions. The zero value is an empty set
// ready for reads; use [NewSet] before calling Add.
type Set map[Permission]struct{}

// NewSet returns a set holding perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether at least one of perms is in the set.
// An empty perms list never matches.
func (s Set) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Add inserts p. The receiver must be non-nil.
func (s Set) Add(p Permission) {
	s[p] = struct{}{}
}

// Len returns the number of permissions in the set.
func (s Set) Len() int {
	return len(s)
}

// Intersect returns the permissions present in both sets.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for p := range s {
		if other.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// SubsetOf reports whether every permission of s is also in other.
func (s Set) SubsetOf(other Set) bool {
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold exactly the same permissions.
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && s.SubsetOf(other)
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Slice returns the permissions sorted lexically, giving tokens and logs a
// stable order.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings is Slice rendered as plain strings.
func (s Set) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func (s Set) String() string {
	return strings.Join(s.Strings(), ",")
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
