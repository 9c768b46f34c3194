package portalauth

import (
	"fmt"
	"time"

	"github.com/dave593/portalauth/password"
)

// LintWarning is a non-fatal configuration finding.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the ordered list of findings from [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// Lint reports settings that are valid but risky. It does not replace
// Validate.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if c.JWT.AccessTTL > 24*time.Hour {
		add("access_ttl_long", "access tokens live %s; consider 24h or less", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live %s; consider 30 days or less", c.JWT.RefreshTTL)
	}
	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "clock leeway of %s widens the replay window", c.JWT.Leeway)
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		add("issuer_audience_unset", "tokens are not bound to an issuer and audience")
	}
	if c.RateLimit.AuthMaxRequests > 20 {
		add("auth_limit_high", "auth endpoints allow %d requests per %s", c.RateLimit.AuthMaxRequests, c.RateLimit.AuthWindow)
	}
	if password.Scheme(c.Password.Scheme) != password.SchemeArgon2id &&
		c.Password.BcryptCost != 0 && c.Password.BcryptCost < password.DefaultBcryptCost {
		add("bcrypt_cost_low", "bcrypt cost %d is below %d", c.Password.BcryptCost, password.DefaultBcryptCost)
	}
	if !c.Revocation.Enabled {
		add("revocation_disabled", "logout cannot invalidate tokens and refresh reuse is not detected")
	}
	if !c.Sanitizer.RejectInjection {
		add("injection_guard_disabled", "operator keys and SQL patterns are not rejected")
	}
	return ws
}
