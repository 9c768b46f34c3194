package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the documented work factor default.
const DefaultBcryptCost = 12

// BcryptMaxSecretBytes is bcrypt's input limit. Longer secrets are refused
// instead of silently truncated.
const BcryptMaxSecretBytes = 72

// Bcrypt is the default Verifier.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a Bcrypt verifier. cost 0 selects DefaultBcryptCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

func (b *Bcrypt) Scheme() Scheme { return SchemeBcrypt }

// Cost returns the configured work factor.
func (b *Bcrypt) Cost() int { return b.cost }

func (b *Bcrypt) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > BcryptMaxSecretBytes {
		return "", ErrSecretTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Compare returns false without error on mismatch. Secrets longer than the
// bcrypt input limit never match.
func (b *Bcrypt) Compare(secret, digest string) (bool, error) {
	if len(secret) > BcryptMaxSecretBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
}

func (b *Bcrypt) NeedsUpgrade(digest string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
	return cost < b.cost, nil
}
