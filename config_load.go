package portalauth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LoadConfigFile decodes a TOML file on top of [DefaultConfig]. Durations are
// written as Go duration strings ("15m", "168h"). Keys absent from the file
// keep their defaults; unknown keys are an error.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyEnv overlays PORTALAUTH_* environment variables onto cfg. Every
// malformed value is reported; valid ones are still applied.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = d
	}
	num := func(name string, dst *int) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}
	flag := func(name string, dst *bool) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = b
	}

	str("PORTALAUTH_JWT_SIGNING_METHOD", &cfg.JWT.SigningMethod)
	str("PORTALAUTH_JWT_ACCESS_SECRET", &cfg.JWT.AccessSecret)
	str("PORTALAUTH_JWT_REFRESH_SECRET", &cfg.JWT.RefreshSecret)
	str("PORTALAUTH_JWT_ACCESS_PUBLIC_KEY", &cfg.JWT.AccessPublicKey)
	str("PORTALAUTH_JWT_REFRESH_PUBLIC_KEY", &cfg.JWT.RefreshPublicKey)
	str("PORTALAUTH_JWT_ISSUER", &cfg.JWT.Issuer)
	str("PORTALAUTH_JWT_AUDIENCE", &cfg.JWT.Audience)
	dur("PORTALAUTH_JWT_ACCESS_TTL", &cfg.JWT.AccessTTL)
	dur("PORTALAUTH_JWT_REFRESH_TTL", &cfg.JWT.RefreshTTL)
	dur("PORTALAUTH_JWT_LEEWAY", &cfg.JWT.Leeway)

	dur("PORTALAUTH_RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	num("PORTALAUTH_RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests)
	dur("PORTALAUTH_RATE_LIMIT_AUTH_WINDOW", &cfg.RateLimit.AuthWindow)
	num("PORTALAUTH_RATE_LIMIT_AUTH_MAX_REQUESTS", &cfg.RateLimit.AuthMaxRequests)
	if v, ok := lookup("PORTALAUTH_RATE_LIMIT_ALGORITHM"); ok {
		cfg.RateLimit.Algorithm = RateLimitAlgorithm(strings.ToLower(v))
	}

	num("PORTALAUTH_SANITIZER_MAX_FIELD_LENGTH", &cfg.Sanitizer.MaxFieldLength)
	if v, ok := lookup("PORTALAUTH_ROLES_ALLOWED"); ok {
		cfg.Roles.AllowedRoles = splitList(v)
	}
	str("PORTALAUTH_ROLES_REGISTRATION_ROLE", &cfg.Roles.RegistrationRole)
	str("PORTALAUTH_TENANT_FIELD", &cfg.Tenant.Field)

	str("PORTALAUTH_PASSWORD_SCHEME", &cfg.Password.Scheme)
	num("PORTALAUTH_PASSWORD_BCRYPT_COST", &cfg.Password.BcryptCost)

	flag("PORTALAUTH_AUDIT_ENABLED", &cfg.Audit.Enabled)
	flag("PORTALAUTH_REVOCATION_ENABLED", &cfg.Revocation.Enabled)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
