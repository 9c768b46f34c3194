package portalauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/internal/audit"
	"github.com/dave593/portalauth/jwt"
	"github.com/dave593/portalauth/password"
	"github.com/dave593/portalauth/security"
)

// Register creates an account and issues its first credential pair. The
// role defaults to Roles.RegistrationRole and must be one of
// Roles.AllowedRoles. A duplicate email is ErrUserExists.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	defer e.metrics.Observe("register", time.Now())

	if e.creator == nil {
		return Session{}, ErrUnsupported
	}

	roleName := strings.TrimSpace(req.Role)
	if roleName == "" {
		roleName = e.config.Roles.RegistrationRole
	}
	input := security.RegisterInput{
		Email:           strings.TrimSpace(req.Email),
		Password:        req.Password,
		ConfirmPassword: req.Password,
		Name:            strings.TrimSpace(req.Name),
		Company:         strings.TrimSpace(req.Company),
		Role:            roleName,
	}
	if err := e.validator.Struct(&input); err != nil {
		e.metrics.Registration("invalid")
		return Session{}, err
	}
	role, err := e.roles.Parse(roleName)
	if err != nil {
		e.metrics.Registration("invalid")
		return Session{}, &security.Failure{
			Code:    security.CodeValidationError,
			Message: "request validation failed",
			Fields:  []security.FieldViolation{{Field: "role", Rule: "role", Message: "is not an allowed role"}},
		}
	}

	digest, err := e.hashSecret("password", req.Password)
	if err != nil {
		if isValidationFailure(err) {
			e.metrics.Registration("invalid")
		} else {
			e.metrics.Registration("error")
		}
		return Session{}, err
	}

	rec, err := e.creator.CreateUser(ctx, CreateUserInput{
		Email:        identity.NormalizeEmail(input.Email),
		Name:         input.Name,
		PasswordHash: digest,
		Role:         string(role),
		Company:      input.Company,
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			e.metrics.Registration("duplicate")
			e.emit(ctx, audit.Event{EventType: audit.EventRegister, Actor: identity.NormalizeEmail(input.Email), Code: string(CodeUserExists)})
			return Session{}, ErrUserExists
		}
		e.metrics.Registration("error")
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p, err := e.principalFromRecord(rec)
	if err != nil {
		e.metrics.Registration("error")
		return Session{}, fmt.Errorf("%w: stored account rejected: %v", ErrUnavailable, err)
	}
	pair, err := e.tokens.Mint(p)
	if err != nil {
		e.metrics.Registration("error")
		return Session{}, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	e.metrics.Registration("success")
	e.emit(ctx, audit.Event{
		EventType: audit.EventRegister,
		Actor:     p.Email,
		UserID:    p.ID,
		Company:   p.Company,
		Success:   true,
	})
	return Session{User: profileFromRecord(rec, p), Tokens: pair}, nil
}

// Login exchanges an email and password for a credential pair. An unknown
// email and a wrong password fail identically with ErrInvalidCredentials and
// cost the same single verifier comparison. A disabled account is only
// reported after the password matched.
func (e *Engine) Login(ctx context.Context, email, secret string) (Session, error) {
	defer e.metrics.Observe("login", time.Now())

	email = identity.NormalizeEmail(email)
	if email == "" || secret == "" {
		e.metrics.Login("invalid")
		return Session{}, ErrInvalidCredentials
	}

	rec, found, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		e.metrics.Login("error")
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	digest := e.dummyDigest
	if found {
		digest = rec.PasswordHash
	}
	match, err := e.verifier.Compare(secret, digest)
	if err != nil {
		match = false
	}
	if !found || !match {
		e.metrics.Login("invalid")
		e.emit(ctx, audit.Event{EventType: audit.EventLoginFailure, Actor: email, Code: string(CodeInvalidCredentials)})
		return Session{}, ErrInvalidCredentials
	}

	if rec.Status != AccountActive {
		e.metrics.Login("disabled")
		e.emit(ctx, audit.Event{EventType: audit.EventLoginFailure, Actor: email, UserID: rec.ID, Code: string(CodeAccountDisabled)})
		return Session{}, ErrAccountDisabled
	}

	p, err := e.principalFromRecord(rec)
	if err != nil {
		e.logger.WarnContext(ctx, "stored account has invalid role or permissions",
			slog.String("user_id", rec.ID),
			slog.String("error", err.Error()),
		)
		e.metrics.Login("invalid")
		return Session{}, ErrInvalidCredentials
	}

	pair, err := e.tokens.Mint(p)
	if err != nil {
		e.metrics.Login("error")
		return Session{}, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeDigest(ctx, rec.ID, secret, rec.PasswordHash)
	}

	e.metrics.Login("success")
	e.emit(ctx, audit.Event{
		EventType: audit.EventLoginSuccess,
		Actor:     p.Email,
		UserID:    p.ID,
		Company:   p.Company,
		Success:   true,
	})
	return Session{User: profileFromRecord(rec, p), Tokens: pair}, nil
}

// Refresh verifies a refresh token and returns a fresh pair carrying the same
// Principal. With a revocation list attached the presented token is consumed
// and a second use fails with ErrInvalidToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (jwt.Pair, error) {
	defer e.metrics.Observe("refresh", time.Now())

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		e.metrics.Refresh("missing")
		return jwt.Pair{}, ErrAuthRequired
	}

	if e.revocation == nil {
		pair, v, err := e.tokens.Rotate(refreshToken)
		if err != nil {
			return jwt.Pair{}, e.refreshFailed(ctx, err)
		}
		e.refreshed(ctx, v.Principal)
		return pair, nil
	}

	v, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return jwt.Pair{}, e.refreshFailed(ctx, err)
	}
	first, err := e.revocation.Claim(ctx, v.TokenID, e.remaining(v.ExpiresAt))
	if err != nil {
		e.logger.ErrorContext(ctx, "refresh claim failed", slog.String("error", err.Error()))
		e.metrics.Refresh("unavailable")
		return jwt.Pair{}, fmt.Errorf("%w: revocation unavailable", ErrInvalidToken)
	}
	if !first {
		e.logger.WarnContext(ctx, "refresh token reuse",
			slog.String("user_id", v.Principal.ID),
			slog.String("client", ClientIPFromContext(ctx)),
		)
		e.metrics.Refresh("reuse")
		e.emit(ctx, audit.Event{
			EventType: audit.EventRefreshReuse,
			Actor:     v.Principal.Email,
			UserID:    v.Principal.ID,
			Company:   v.Principal.Company,
			Code:      string(CodeInvalidToken),
		})
		return jwt.Pair{}, ErrInvalidToken
	}

	pair, err := e.tokens.Mint(v.Principal)
	if err != nil {
		e.metrics.Refresh("error")
		return jwt.Pair{}, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	e.refreshed(ctx, v.Principal)
	return pair, nil
}

// Logout revokes the given tokens until their natural expiry. Without a
// revocation list it is a no-op: stateless tokens stay valid until they
// expire. Either token may be empty; invalid tokens are ignored.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e.revocation == nil {
		return nil
	}

	var actor identity.Principal
	if v, err := e.tokens.VerifyAccess(strings.TrimSpace(accessToken)); err == nil {
		actor = v.Principal
		if err := e.revocation.Revoke(ctx, v.TokenID, e.remaining(v.ExpiresAt)); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if v, err := e.tokens.VerifyRefresh(strings.TrimSpace(refreshToken)); err == nil {
		if actor.ID == "" {
			actor = v.Principal
		}
		if err := e.revocation.Revoke(ctx, v.TokenID, e.remaining(v.ExpiresAt)); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	e.metrics.Logout()
	e.emit(ctx, audit.Event{
		EventType: audit.EventLogout,
		Actor:     actor.Email,
		UserID:    actor.ID,
		Company:   actor.Company,
		Success:   true,
	})
	return nil
}

// ChangePassword verifies the access token and the current password, then
// stores a digest of next. The new password must satisfy the strength rule
// and differ from the current one.
func (e *Engine) ChangePassword(ctx context.Context, accessToken, current, next string) error {
	defer e.metrics.Observe("change_password", time.Now())

	if e.updater == nil {
		return ErrUnsupported
	}
	p, err := e.Verify(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := e.validator.Struct(&security.ChangePasswordInput{
		CurrentPassword: current,
		NewPassword:     next,
		ConfirmPassword: next,
	}); err != nil {
		e.metrics.PasswordChange("invalid")
		return err
	}

	rec, found, err := e.users.FindByID(ctx, p.ID)
	if err != nil {
		e.metrics.PasswordChange("error")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		e.metrics.PasswordChange("invalid")
		return ErrInvalidToken
	}
	match, err := e.verifier.Compare(current, rec.PasswordHash)
	if err != nil || !match {
		e.metrics.PasswordChange("mismatch")
		e.emit(ctx, audit.Event{EventType: audit.EventPasswordChanged, Actor: p.Email, UserID: p.ID, Code: string(CodeInvalidCredentials)})
		return ErrInvalidCredentials
	}

	digest, err := e.hashSecret("newPassword", next)
	if err != nil {
		if isValidationFailure(err) {
			e.metrics.PasswordChange("invalid")
		} else {
			e.metrics.PasswordChange("error")
		}
		return err
	}
	if err := e.updater.UpdatePasswordHash(ctx, p.ID, digest); err != nil {
		e.metrics.PasswordChange("error")
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metrics.PasswordChange("success")
	e.emit(ctx, audit.Event{
		EventType: audit.EventPasswordChanged,
		Actor:     p.Email,
		UserID:    p.ID,
		Company:   p.Company,
		Success:   true,
	})
	return nil
}

func (e *Engine) refreshFailed(ctx context.Context, err error) error {
	outcome := jwt.Classify(err)
	e.logVerifyFailure(ctx, outcome)
	e.metrics.Refresh(outcome)
	return ErrInvalidToken
}

func (e *Engine) refreshed(ctx context.Context, p identity.Principal) {
	e.metrics.Refresh("success")
	e.emit(ctx, audit.Event{
		EventType: audit.EventRefresh,
		Actor:     p.Email,
		UserID:    p.ID,
		Company:   p.Company,
		Success:   true,
	})
}

// remaining is the time left before exp, with a one second floor so entries
// for tokens at the edge of expiry are still written.
func (e *Engine) remaining(exp time.Time) time.Duration {
	d := exp.Sub(e.now())
	if d < time.Second {
		d = time.Second
	}
	return d
}

// hashSecret hashes a user-supplied secret. Input the verifier refuses, such
// as a secret past its length limit, is a validation failure on field; any
// other hashing error means the verifier itself is unusable.
func (e *Engine) hashSecret(field, secret string) (string, error) {
	digest, err := e.verifier.Hash(secret)
	switch {
	case err == nil:
		return digest, nil
	case errors.Is(err, password.ErrSecretTooLong):
		return "", &security.Failure{
			Code:    security.CodeValidationError,
			Message: "request validation failed",
			Fields:  []security.FieldViolation{{Field: field, Rule: "secretbytes", Message: "is too long"}},
		}
	case errors.Is(err, password.ErrEmptySecret):
		return "", &security.Failure{
			Code:    security.CodeValidationError,
			Message: "request validation failed",
			Fields:  []security.FieldViolation{{Field: field, Rule: "required", Message: "is required"}},
		}
	default:
		return "", fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
}

func isValidationFailure(err error) bool {
	var f *security.Failure
	return errors.As(err, &f) && f.Code == security.CodeValidationError
}

// upgradeDigest rehashes secret when the stored digest uses weaker
// parameters than the verifier's current ones. Failures are logged only.
func (e *Engine) upgradeDigest(ctx context.Context, userID, secret, digest string) {
	uc, ok := e.verifier.(upgradeChecker)
	if !ok || e.updater == nil {
		return
	}
	needs, err := uc.NeedsUpgrade(digest)
	if err != nil || !needs {
		return
	}
	fresh, err := e.verifier.Hash(secret)
	if err != nil {
		return
	}
	if err := e.updater.UpdatePasswordHash(ctx, userID, fresh); err != nil {
		e.logger.WarnContext(ctx, "password digest upgrade failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
