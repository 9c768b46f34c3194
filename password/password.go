package password

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySecret is returned when hashing an empty password.
	ErrEmptySecret = errors.New("password must not be empty")
	// ErrMalformedDigest is returned when a stored digest cannot be parsed.
	ErrMalformedDigest = errors.New("malformed password digest")
	// ErrSecretTooLong is returned when a secret exceeds the scheme's input limit.
	ErrSecretTooLong = errors.New("password too long")
)

// Scheme names a hashing algorithm.
type Scheme string

const (
	SchemeBcrypt   Scheme = "bcrypt"
	SchemeArgon2id Scheme = "argon2id"
)

// Verifier hashes and compares secrets.
type Verifier interface {
	Hash(secret string) (string, error)
	Compare(secret, digest string) (bool, error)
	NeedsUpgrade(digest string) (bool, error)
	Scheme() Scheme
}

// Config selects a scheme and its parameters.
type Config struct {
	Scheme     Scheme
	BcryptCost int
	Argon2     Argon2Config
}

// DefaultConfig returns bcrypt at DefaultBcryptCost with Argon2 parameters
// ready should the scheme be switched.
func DefaultConfig() Config {
	return Config{
		Scheme:     SchemeBcrypt,
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Config(),
	}
}

// New builds the Verifier named by cfg.Scheme.
func New(cfg Config) (Verifier, error) {
	switch cfg.Scheme {
	case SchemeBcrypt, "":
		return NewBcrypt(cfg.BcryptCost)
	case SchemeArgon2id:
		return NewArgon2(cfg.Argon2)
	default:
		return nil, fmt.Errorf("unsupported password scheme %q", cfg.Scheme)
	}
}
