// Package identity holds the Principal: the authenticated identity carried
// inside a credential.
package identity

import (
	"strings"

	"github.com/dave593/portalauth/permission"
)

// Principal is the identity decoded from a verified credential. Values are
// treated as immutable once minted into a token.
type Principal struct {
	ID          string
	Email       string
	Role        permission.Role
	Company     string
	Permissions permission.Set
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clone returns a deep copy.
func (p Principal) Clone() Principal {
	out := p
	out.Permissions = p.Permissions.Clone()
	return out
}

// Equal reports whether two principals carry the same claims.
func (p Principal) Equal(other Principal) bool {
	return p.ID == other.ID &&
		p.Email == other.Email &&
		p.Role == other.Role &&
		p.Company == other.Company &&
		p.Permissions.Equal(other.Permissions)
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == permission.RoleAdmin
}
