package portalauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dave593/portalauth/jwt"
	"github.com/dave593/portalauth/password"
)

// Config is the full engine configuration. Build it from [DefaultConfig],
// [LoadConfigFile] or by hand, then pass it to [Builder.WithConfig]. It is
// copied at Build and treated as immutable afterwards.
type Config struct {
	JWT        JWTConfig        `toml:"jwt"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Sanitizer  SanitizerConfig  `toml:"sanitizer"`
	Roles      RolesConfig      `toml:"roles"`
	Tenant     TenantConfig     `toml:"tenant"`
	Password   PasswordConfig   `toml:"password"`
	Audit      AuditConfig      `toml:"audit"`
	Revocation RevocationConfig `toml:"revocation"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token service. For hs256 the secrets are used as
// HMAC keys; for ed25519 they hold private keys (raw or PEM) and the
// *PublicKey fields the matching public keys.
type JWTConfig struct {
	AccessTTL        time.Duration `toml:"access_ttl"`
	RefreshTTL       time.Duration `toml:"refresh_ttl"`
	SigningMethod    string        `toml:"signing_method"` // "hs256" (default) or "ed25519"
	AccessSecret     string        `toml:"access_secret"`
	RefreshSecret    string        `toml:"refresh_secret"`
	AccessPublicKey  string        `toml:"access_public_key"`
	RefreshPublicKey string        `toml:"refresh_public_key"`
	Issuer           string        `toml:"issuer"`
	Audience         string        `toml:"audience"`
	Leeway           time.Duration `toml:"leeway"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitAlgorithm selects the counter used by the rate-limit gate.
type RateLimitAlgorithm string

const (
	// RateLimitWindow is a fixed window anchored at the client's first request.
	RateLimitWindow RateLimitAlgorithm = "window"
	// RateLimitBucket is a token bucket refilled at MaxRequests per Window.
	RateLimitBucket RateLimitAlgorithm = "bucket"
)

// RateLimitConfig holds the general and auth-sensitive ceilings.
type RateLimitConfig struct {
	Window          time.Duration      `toml:"window"`
	MaxRequests     int                `toml:"max_requests"`
	AuthWindow      time.Duration      `toml:"auth_window"`
	AuthMaxRequests int                `toml:"auth_max_requests"`
	Algorithm       RateLimitAlgorithm `toml:"algorithm"`
	RedisPrefix     string             `toml:"redis_prefix"`
}

/*
====================================
INPUT CONFIG
====================================
*/

// SanitizerConfig bounds and cleans incoming string fields.
type SanitizerConfig struct {
	MaxFieldLength  int  `toml:"max_field_length"`
	RejectInjection bool `toml:"reject_injection"`
}

// RolesConfig constrains self-registration.
type RolesConfig struct {
	AllowedRoles     []string `toml:"allowed_roles"`
	RegistrationRole string   `toml:"registration_role"`
}

// TenantConfig names the body field that carries a company identifier.
type TenantConfig struct {
	Field string `toml:"field"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the credential verifier.
type PasswordConfig struct {
	Scheme         string                `toml:"scheme"` // "bcrypt" (default) or "argon2id"
	BcryptCost     int                   `toml:"bcrypt_cost"`
	Argon2         password.Argon2Config `toml:"argon2"`
	UpgradeOnLogin bool                  `toml:"upgrade_on_login"`
}

/*
====================================
AUDIT / REVOCATION CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
}

// RevocationConfig enables the token revocation list. With a Redis client
// attached the list lives in Redis; otherwise it is process-local.
type RevocationConfig struct {
	Enabled     bool   `toml:"enabled"`
	RedisPrefix string `toml:"redis_prefix"`
}

// DefaultConfig returns the stock configuration. JWT secrets are empty and
// must be supplied before Build.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: string(jwt.MethodHS256),
			// Zero matches the jwt library: expiry is exact unless skew is
			// configured explicitly.
			Leeway: 0,
		},
		RateLimit: RateLimitConfig{
			Window:          15 * time.Minute,
			MaxRequests:     100,
			AuthWindow:      15 * time.Minute,
			AuthMaxRequests: 5,
			Algorithm:       RateLimitWindow,
			RedisPrefix:     "portalauth",
		},
		Sanitizer: SanitizerConfig{
			MaxFieldLength:  1000,
			RejectInjection: true,
		},
		Roles: RolesConfig{
			AllowedRoles:     []string{"inspector", "user"},
			RegistrationRole: "user",
		},
		Tenant: TenantConfig{
			Field: "company",
		},
		Password: PasswordConfig{
			Scheme:         string(password.SchemeBcrypt),
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Revocation: RevocationConfig{
			Enabled:     false,
			RedisPrefix: "portalauth",
		},
	}
}

func cloneConfig(c Config) Config {
	out := c
	out.Roles.AllowedRoles = append([]string(nil), c.Roles.AllowedRoles...)
	return out
}

// Validate reports the first configuration error. A config that fails
// Validate never produces an Engine.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	switch jwt.SigningMethod(strings.ToLower(c.JWT.SigningMethod)) {
	case jwt.MethodHS256:
		if len(c.JWT.AccessSecret) < jwt.MinHMACSecretBytes || len(c.JWT.RefreshSecret) < jwt.MinHMACSecretBytes {
			return fmt.Errorf("%w: hs256 secrets must be at least %d bytes", ErrVerifierUnavailable, jwt.MinHMACSecretBytes)
		}
	case jwt.MethodEd25519:
		if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
			return fmt.Errorf("%w: ed25519 requires access and refresh private keys", ErrVerifierUnavailable)
		}
		if c.JWT.AccessPublicKey == "" || c.JWT.RefreshPublicKey == "" {
			return fmt.Errorf("%w: ed25519 requires access and refresh public keys", ErrVerifierUnavailable)
		}
	default:
		return fmt.Errorf("%w: unsupported JWT signing method", ErrVerifierUnavailable)
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("%w: access and refresh keys must differ", ErrVerifierUnavailable)
	}

	// Rate limit
	if c.RateLimit.Window <= 0 || c.RateLimit.AuthWindow <= 0 {
		return errors.New("RateLimit windows must be > 0")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.AuthMaxRequests <= 0 {
		return errors.New("RateLimit ceilings must be > 0")
	}
	switch c.RateLimit.Algorithm {
	case RateLimitWindow, RateLimitBucket, "":
	default:
		return fmt.Errorf("unsupported rate limit algorithm %q", c.RateLimit.Algorithm)
	}

	// Input
	if c.Sanitizer.MaxFieldLength <= 0 {
		return errors.New("Sanitizer MaxFieldLength must be > 0")
	}
	if c.Tenant.Field == "" {
		return errors.New("Tenant Field must be set")
	}
	if len(c.Roles.AllowedRoles) == 0 {
		return errors.New("Roles AllowedRoles must not be empty")
	}
	if c.Roles.RegistrationRole == "" {
		return errors.New("Roles RegistrationRole must be set")
	}
	allowed := false
	for _, r := range c.Roles.AllowedRoles {
		if strings.EqualFold(r, c.Roles.RegistrationRole) {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.New("Roles RegistrationRole must be one of AllowedRoles")
	}

	// Password
	switch password.Scheme(c.Password.Scheme) {
	case password.SchemeBcrypt, "":
		if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31) {
			return fmt.Errorf("%w: Password BcryptCost must be between 4 and 31", ErrVerifierUnavailable)
		}
	case password.SchemeArgon2id:
		if err := c.Password.Argon2.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
		}
	default:
		return fmt.Errorf("%w: unsupported password scheme %q", ErrVerifierUnavailable, c.Password.Scheme)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

func (c *Config) jwtConfig() jwt.Config {
	jc := jwt.Config{
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(c.JWT.SigningMethod)),
		Access:        jwt.KeyConfig{PrivateKey: []byte(c.JWT.AccessSecret)},
		Refresh:       jwt.KeyConfig{PrivateKey: []byte(c.JWT.RefreshSecret)},
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
	}
	if c.JWT.AccessPublicKey != "" {
		jc.Access.PublicKey = []byte(c.JWT.AccessPublicKey)
	}
	if c.JWT.RefreshPublicKey != "" {
		jc.Refresh.PublicKey = []byte(c.JWT.RefreshPublicKey)
	}
	return jc
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Scheme:     password.Scheme(c.Password.Scheme),
		BcryptCost: c.Password.BcryptCost,
		Argon2:     c.Password.Argon2,
	}
}
