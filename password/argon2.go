package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// DefaultMaxSecretBytes bounds argon2 input when MaxSecretBytes is zero.
	DefaultMaxSecretBytes = 1024
)

// Argon2Config holds argon2id parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32 `toml:"memory"`
	Time        uint32 `toml:"time"`
	Parallelism uint8  `toml:"parallelism"`
	SaltLength  uint32 `toml:"salt_length"`
	KeyLength   uint32 `toml:"key_length"`
	// MaxSecretBytes caps input size; 0 selects DefaultMaxSecretBytes.
	MaxSecretBytes int `toml:"max_secret_bytes"`
}

// DefaultArgon2Config returns 64 MiB, 3 passes, 2 lanes.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate enforces the parameter floors.
func (c Argon2Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return errors.New("argon2 memory must be >= 8192 KiB")
	case c.Time < minTimeCost:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return errors.New("argon2 salt length must be >= 16")
	case c.KeyLength < minKeyLength:
		return errors.New("argon2 key length must be >= 16")
	}
	return nil
}

// Argon2 is the argon2id Verifier.
type Argon2 struct {
	config Argon2Config
}

// NewArgon2 validates cfg and returns a verifier.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxSecretBytes <= 0 {
		cfg.MaxSecretBytes = DefaultMaxSecretBytes
	}
	return &Argon2{config: cfg}, nil
}

func (a *Argon2) Scheme() Scheme { return SchemeArgon2id }

// Config returns the hashing parameters.
func (a *Argon2) Config() Argon2Config { return a.config }

// Hash uses the secret bytes exactly as given, without Unicode normalization.
func (a *Argon2) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > a.config.MaxSecretBytes {
		return "", ErrSecretTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		SchemeArgon2id,
		argon2.Version,
		a.config.Memory, a.config.Time, a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Compare recomputes the key with the digest's own parameters.
func (a *Argon2) Compare(secret, digest string) (bool, error) {
	if len(secret) > a.config.MaxSecretBytes {
		return false, ErrSecretTooLong
	}
	d, err := decodePHC(digest)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(secret), d.salt, d.params.Time, d.params.Memory, d.params.Parallelism, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	d, err := decodePHC(digest)
	if err != nil {
		return false, err
	}
	p := d.params
	return a.config.Memory > p.Memory ||
		a.config.Time > p.Time ||
		a.config.Parallelism > p.Parallelism ||
		a.config.KeyLength != uint32(len(d.key)), nil
}

type phc struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func decodePHC(digest string) (phc, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != string(SchemeArgon2id) {
		return phc{}, fmt.Errorf("%w: not an argon2id PHC string", ErrMalformedDigest)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, fmt.Errorf("%w: unsupported argon2 version", ErrMalformedDigest)
	}

	params, err := decodeParams(parts[3])
	if err != nil {
		return phc{}, err
	}

	salt, err := decodeB64(parts[4])
	if err != nil || uint32(len(salt)) < minSaltLength {
		return phc{}, fmt.Errorf("%w: invalid salt", ErrMalformedDigest)
	}
	key, err := decodeB64(parts[5])
	if err != nil || uint32(len(key)) < minKeyLength {
		return phc{}, fmt.Errorf("%w: invalid key", ErrMalformedDigest)
	}

	return phc{params: params, salt: salt, key: key}, nil
}

// Digests written with padded base64 are still accepted.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func decodeParams(part string) (Argon2Config, error) {
	var (
		out  Argon2Config
		seen = map[string]bool{}
	)
	for _, pair := range strings.Split(part, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || seen[k] {
			return out, fmt.Errorf("%w: invalid parameter %q", ErrMalformedDigest, pair)
		}
		seen[k] = true

		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return out, fmt.Errorf("%w: invalid parameter %q", ErrMalformedDigest, pair)
		}
		switch k {
		case "m":
			out.Memory = uint32(n)
		case "t":
			out.Time = uint32(n)
		case "p":
			if n > 255 {
				return out, fmt.Errorf("%w: invalid parameter %q", ErrMalformedDigest, pair)
			}
			out.Parallelism = uint8(n)
		default:
			return out, fmt.Errorf("%w: unknown parameter %q", ErrMalformedDigest, k)
		}
	}
	if !seen["m"] || !seen["t"] || !seen["p"] {
		return out, fmt.Errorf("%w: missing parameters", ErrMalformedDigest)
	}
	if out.Memory < minMemoryKB || out.Time < minTimeCost || out.Parallelism < minParallelism {
		return out, fmt.Errorf("%w: parameters below floor", ErrMalformedDigest)
	}
	return out, nil
}
