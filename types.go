package portalauth

import (
	"context"
	"time"

	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/jwt"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountDisabled
	AccountLocked
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountDisabled:
		return "disabled"
	case AccountLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// UserRecord is the stored account as returned by a [UserProvider]. Role and
// Permissions are raw strings; the engine validates them against its role
// table before minting. Empty Permissions means the role defaults.
type UserRecord struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Company      string
	Permissions  []string
	Status       AccountStatus
	CreatedAt    time.Time
}

// UserProvider is the read-only user lookup the engine requires. A missing
// user is reported as found=false with a nil error.
type UserProvider interface {
	FindByEmail(ctx context.Context, email string) (rec UserRecord, found bool, err error)
	FindByID(ctx context.Context, id string) (rec UserRecord, found bool, err error)
}

// CreateUserInput is handed to a [UserCreator] at registration. PasswordHash
// is already produced by the credential verifier.
type CreateUserInput struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Company      string
	Permissions  []string
}

// UserCreator persists new accounts. It returns ErrUserExists for a
// duplicate email.
type UserCreator interface {
	CreateUser(ctx context.Context, in CreateUserInput) (UserRecord, error)
}

// PasswordUpdater persists a new password digest.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// CredentialVerifier hashes and compares secrets. password.Bcrypt and
// password.Argon2 implement it.
type CredentialVerifier interface {
	Hash(secret string) (string, error)
	Compare(secret, digest string) (bool, error)
}

// upgradeChecker is implemented by verifiers that can tell when a digest was
// produced with weaker parameters.
type upgradeChecker interface {
	NeedsUpgrade(digest string) (bool, error)
}

// RevocationList records revoked token ids until their natural expiry.
// revocation.RedisList and revocation.MemoryList implement it.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Claim revokes jti and reports whether this call was first.
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// UserProfile is the public view of an account. It never carries the digest.
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	Role        string    `json:"role"`
	Company     string    `json:"company"`
	Permissions []string  `json:"permissions"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Session is returned by Register and Login.
type Session struct {
	User   UserProfile `json:"user"`
	Tokens jwt.Pair    `json:"tokens"`
}

// RegisterRequest is the input to [Engine.Register]. An empty Role selects
// the configured registration role.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	Company  string
	Role     string
}

func profileFromPrincipal(p identity.Principal) UserProfile {
	return UserProfile{
		ID:          p.ID,
		Email:       p.Email,
		Role:        string(p.Role),
		Company:     p.Company,
		Permissions: p.Permissions.Strings(),
	}
}

func profileFromRecord(rec UserRecord, p identity.Principal) UserProfile {
	out := profileFromPrincipal(p)
	out.Name = rec.Name
	out.Status = rec.Status.String()
	out.CreatedAt = rec.CreatedAt
	return out
}
