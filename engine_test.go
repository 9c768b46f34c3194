package portalauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/password"
	"github.com/dave593/portalauth/permission"
	"github.com/dave593/portalauth/policy"
	"github.com/dave593/portalauth/security"
)

type mockUserStore struct {
	mu      sync.Mutex
	users   map[string]UserRecord
	byEmail map[string]string
	seq     int

	updatePasswordCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:   make(map[string]UserRecord),
		byEmail: make(map[string]string),
	}
}

func (m *mockUserStore) FindByEmail(_ context.Context, email string) (UserRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return UserRecord{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *mockUserStore) FindByID(_ context.Context, id string) (UserRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	return rec, ok, nil
}

func (m *mockUserStore) CreateUser(_ context.Context, in CreateUserInput) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[in.Email]; exists {
		return UserRecord{}, ErrUserExists
	}
	m.seq++
	rec := UserRecord{
		ID:           fmt.Sprintf("u-%d", m.seq),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		Company:      in.Company,
		Permissions:  in.Permissions,
		Status:       AccountActive,
	}
	m.users[rec.ID] = rec
	m.byEmail[rec.Email] = rec.ID
	return rec, nil
}

func (m *mockUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++
	rec, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	rec.PasswordHash = hash
	m.users[id] = rec
	return nil
}

func (m *mockUserStore) put(rec UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[rec.ID] = rec
	m.byEmail[rec.Email] = rec.ID
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingVerifier counts comparisons so tests can check that both login
// failure paths do the same work.
type countingVerifier struct {
	CredentialVerifier
	compares atomic.Int32
}

func (c *countingVerifier) Compare(secret, digest string) (bool, error) {
	c.compares.Add(1)
	return c.CredentialVerifier.Compare(secret, digest)
}

const testPassword = "Correct1Horse"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = "access-secret-access-secret-0123456789"
	cfg.JWT.RefreshSecret = "refresh-secret-refresh-secret-0123456789"
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.JWT.Issuer = "portalauth-test"
	cfg.JWT.Audience = "portal"
	cfg.Password.BcryptCost = 4
	return cfg
}

type engineOption func(*Builder, *Config)

func withRevocation() engineOption {
	return func(_ *Builder, cfg *Config) { cfg.Revocation.Enabled = true }
}

func newTestEngine(t *testing.T, store *mockUserStore, clock *testClock, opts ...engineOption) *Engine {
	t.Helper()

	cfg := testConfig()
	b := New()
	for _, opt := range opts {
		opt(b, &cfg)
	}
	engine, err := b.
		WithConfig(cfg).
		WithClock(clock.Now).
		WithUserProvider(store).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func register(t *testing.T, e *Engine, email, company string) Session {
	t.Helper()
	s, err := e.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Test User",
		Company:  company,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return s
}

func TestRegisterLoginVerifyRoundTrip(t *testing.T) {
	store := newMockUserStore()
	clock := newTestClock()
	e := newTestEngine(t, store, clock)
	ctx := context.Background()

	reg := register(t, e, "Ana@Example.com", "acme")
	if reg.User.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", reg.User.Email)
	}
	if reg.User.Role != string(permission.RoleUser) {
		t.Fatalf("expected registration role user, got %q", reg.User.Role)
	}

	sess, err := e.Login(ctx, "ana@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	p, err := e.Verify(ctx, sess.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := identity.Principal{
		ID:          reg.User.ID,
		Email:       "ana@example.com",
		Role:        permission.RoleUser,
		Company:     "acme",
		Permissions: permission.NewSet(permission.Read),
	}
	if !p.Equal(want) {
		t.Fatalf("principal mismatch: got %+v want %+v", p, want)
	}

	profile, err := e.WhoAmI(ctx, sess.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if profile.Name != "Test User" || profile.Status != "active" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestLoginUnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	store := newMockUserStore()
	clock := newTestClock()

	bc, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	counter := &countingVerifier{CredentialVerifier: bc}

	cfg := testConfig()
	e, err := New().
		WithConfig(cfg).
		WithClock(clock.Now).
		WithUserProvider(store).
		WithVerifier(counter).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	register(t, e, "known@example.com", "acme")

	ctx := context.Background()

	counter.compares.Store(0)
	_, errUnknown := e.Login(ctx, "nobody@example.com", testPassword)
	unknownCompares := counter.compares.Load()

	counter.compares.Store(0)
	_, errWrong := e.Login(ctx, "known@example.com", "Wrong1Password")
	wrongCompares := counter.compares.Load()

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("error text differs: %q vs %q", errUnknown, errWrong)
	}
	ru, rw := Failure(errUnknown), Failure(errWrong)
	if ru.Code != rw.Code || ru.Message != rw.Message || ru.Status() != rw.Status() {
		t.Fatalf("results differ: %+v vs %+v", ru, rw)
	}
	if unknownCompares != 1 || wrongCompares != 1 {
		t.Fatalf("expected one comparison per path, got unknown=%d wrong=%d", unknownCompares, wrongCompares)
	}
}

func TestLoginDisabledAccountOnlyAfterPasswordMatch(t *testing.T) {
	store := newMockUserStore()
	e := newTestEngine(t, store, newTestClock())
	reg := register(t, e, "off@example.com", "acme")

	rec, _, _ := store.FindByID(context.Background(), reg.User.ID)
	rec.Status = AccountDisabled
	store.put(rec)

	if _, err := e.Login(context.Background(), "off@example.com", "Wrong1Password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := e.Login(context.Background(), "off@example.com", testPassword); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLoginRejectsStoredUnknownRole(t *testing.T) {
	store := newMockUserStore()
	e := newTestEngine(t, store, newTestClock())
	reg := register(t, e, "odd@example.com", "acme")

	rec, _, _ := store.FindByID(context.Background(), reg.User.ID)
	rec.Role = "superuser"
	store.put(rec)

	if _, err := e.Login(context.Background(), "odd@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterDuplicateAndRoleRules(t *testing.T) {
	store := newMockUserStore()
	e := newTestEngine(t, store, newTestClock())
	register(t, e, "dup@example.com", "acme")

	_, err := e.Register(context.Background(), RegisterRequest{
		Email: "DUP@example.com", Password: testPassword, Name: "Other", Company: "acme",
	})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	_, err = e.Register(context.Background(), RegisterRequest{
		Email: "boss@example.com", Password: testPassword, Name: "Boss", Company: "acme", Role: "admin",
	})
	if CodeOf(err) != CodeValidationError || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for admin self-registration, got %v", err)
	}

	s, err := e.Register(context.Background(), RegisterRequest{
		Email: "insp@example.com", Password: testPassword, Name: "Inspector", Company: "acme", Role: "Inspector",
	})
	if err != nil {
		t.Fatalf("Register inspector: %v", err)
	}
	if s.User.Role != string(permission.RoleInspector) {
		t.Fatalf("expected inspector, got %q", s.User.Role)
	}

	_, err = e.Register(context.Background(), RegisterRequest{
		Email: "weak@example.com", Password: "short", Name: "Weak", Company: "acme",
	})
	r := Failure(err)
	if r.Code != CodeValidationError || len(r.Errors) == 0 || r.Errors[0].Field != "password" {
		t.Fatalf("expected password violation, got %+v", r)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected weak password to match ErrValidation, got %v", err)
	}
}

func TestVerifyRejectsMissingExpiredAndWrongClass(t *testing.T) {
	clock := newTestClock()
	store := newMockUserStore()
	e := newTestEngine(t, store, clock)
	s := register(t, e, "v@example.com", "acme")
	ctx := context.Background()

	if _, err := e.Verify(ctx, ""); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if _, err := e.Verify(ctx, s.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not verify as access, got %v", err)
	}
	if _, err := e.Verify(ctx, "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	clock.Advance(16 * time.Minute)
	if _, err := e.Verify(ctx, s.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
	if _, ok := e.Authenticate(ctx, s.Tokens.AccessToken); ok {
		t.Fatal("Authenticate should report false for expired token")
	}

	if _, err := e.Refresh(ctx, s.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestDefaultConfigHasNoExpiryLeeway(t *testing.T) {
	if l := DefaultConfig().JWT.Leeway; l != 0 {
		t.Fatalf("expected zero default leeway, got %v", l)
	}

	clock := newTestClock()
	e := newTestEngine(t, newMockUserStore(), clock)
	s := register(t, e, "edge@example.com", "acme")
	ctx := context.Background()

	clock.Advance(15*time.Minute - time.Second)
	if _, err := e.Verify(ctx, s.Tokens.AccessToken); err != nil {
		t.Fatalf("token should verify one second before expiry: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := e.Verify(ctx, s.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken one second after expiry, got %v", err)
	}
}

func TestConfiguredLeewayToleratesSkew(t *testing.T) {
	clock := newTestClock()
	skew := func(_ *Builder, cfg *Config) { cfg.JWT.Leeway = 30 * time.Second }
	e := newTestEngine(t, newMockUserStore(), clock, skew)
	s := register(t, e, "skew@example.com", "acme")

	clock.Advance(15*time.Minute + 10*time.Second)
	if _, err := e.Verify(context.Background(), s.Tokens.AccessToken); err != nil {
		t.Fatalf("token within configured leeway should verify: %v", err)
	}
}

func TestRefreshIssuesFreshPairWithSamePrincipal(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(t, newMockUserStore(), clock)
	s := register(t, e, "r@example.com", "acme")
	ctx := context.Background()

	clock.Advance(time.Minute)
	pair, err := e.Refresh(ctx, s.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.AccessToken == s.Tokens.AccessToken || pair.RefreshToken == s.Tokens.RefreshToken {
		t.Fatal("expected a fresh pair")
	}

	before, err := e.Verify(ctx, s.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify old: %v", err)
	}
	after, err := e.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify new: %v", err)
	}
	if !before.Equal(after) {
		t.Fatalf("principal changed across refresh: %+v vs %+v", before, after)
	}

	// Without a revocation list the presented token stays usable.
	if _, err := e.Refresh(ctx, s.Tokens.RefreshToken); err != nil {
		t.Fatalf("second refresh without revocation: %v", err)
	}
}

func TestRefreshReuseDetectedWithRevocation(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(t, newMockUserStore(), clock, withRevocation())
	s := register(t, e, "reuse@example.com", "acme")
	ctx := context.Background()

	if _, err := e.Refresh(ctx, s.Tokens.RefreshToken); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if _, err := e.Refresh(ctx, s.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}
}

func TestLogoutRevokesUntilExpiry(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(t, newMockUserStore(), clock, withRevocation())
	s := register(t, e, "bye@example.com", "acme")
	ctx := context.Background()

	if err := e.Logout(ctx, s.Tokens.AccessToken, s.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := e.Verify(ctx, s.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked access token, got %v", err)
	}
	if _, err := e.Refresh(ctx, s.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
}

func TestLogoutWithoutRevocationIsNoOp(t *testing.T) {
	e := newTestEngine(t, newMockUserStore(), newTestClock())
	s := register(t, e, "stay@example.com", "acme")

	if err := e.Logout(context.Background(), s.Tokens.AccessToken, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := e.Verify(context.Background(), s.Tokens.AccessToken); err != nil {
		t.Fatalf("token should remain valid: %v", err)
	}
}

func TestAuthorizeOrderAndTenantScope(t *testing.T) {
	e := newTestEngine(t, newMockUserStore(), newTestClock())
	ctx := context.Background()

	user := &identity.Principal{ID: "1", Email: "u@acme", Role: permission.RoleUser, Company: "acme", Permissions: permission.NewSet(permission.Read)}
	admin := &identity.Principal{ID: "2", Email: "a@hq", Role: permission.RoleAdmin, Company: "hq", Permissions: permission.NewSet(permission.Read, permission.Admin)}

	tests := []struct {
		name string
		p    *identity.Principal
		req  policy.Requirement
		want error
	}{
		{"no principal", nil, policy.Requirement{}, ErrAuthRequired},
		{"role", user, policy.Requirement{Roles: []permission.Role{permission.RoleAdmin}}, ErrInsufficientRole},
		{"permission", user, policy.Requirement{Permissions: []permission.Permission{permission.Write, permission.Delete}}, ErrInsufficientPermissions},
		{"any permission", user, policy.Requirement{Permissions: []permission.Permission{permission.Write, permission.Read}}, nil},
		{"own tenant", user, policy.Requirement{Tenant: "acme"}, nil},
		{"cross tenant", user, policy.Requirement{Tenant: "globex"}, ErrCompanyAccessDenied},
		{"conflict", user, policy.Requirement{TenantConflict: true}, ErrCompanyAccessDenied},
		{"admin cross tenant", admin, policy.Requirement{Tenant: "globex"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Authorize(ctx, tt.p, tt.req)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}

	// Role and permission denies share the wire code.
	err := e.Authorize(ctx, user, policy.Requirement{Roles: []permission.Role{permission.RoleAdmin}})
	if CodeOf(err) != CodeInsufficientPermissions || StatusOf(err) != 403 {
		t.Fatalf("role deny should surface as INSUFFICIENT_PERMISSIONS/403, got %s", CodeOf(err))
	}
}

func TestChangePassword(t *testing.T) {
	store := newMockUserStore()
	e := newTestEngine(t, store, newTestClock())
	s := register(t, e, "cp@example.com", "acme")
	ctx := context.Background()

	if err := e.ChangePassword(ctx, s.Tokens.AccessToken, "Wrong1Password", "Another2Secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := e.ChangePassword(ctx, s.Tokens.AccessToken, testPassword, testPassword); CodeOf(err) != CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR for unchanged password, got %v", err)
	}
	if err := e.ChangePassword(ctx, s.Tokens.AccessToken, testPassword, "Another2Secret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := e.Login(ctx, "cp@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := e.Login(ctx, "cp@example.com", "Another2Secret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

// refusingVerifier reports ErrSecretTooLong for one secret, the way a scheme
// with a tighter input limit would.
type refusingVerifier struct {
	CredentialVerifier
	refuse string
}

func (r refusingVerifier) Hash(secret string) (string, error) {
	if secret == r.refuse {
		return "", password.ErrSecretTooLong
	}
	return r.CredentialVerifier.Hash(secret)
}

func TestOverlongPasswordIsValidationError(t *testing.T) {
	store := newMockUserStore()
	e := newTestEngine(t, store, newTestClock())
	s := register(t, e, "long@example.com", "acme")
	ctx := context.Background()

	overlong := "Aa1" + strings.Repeat("x", 80)

	_, err := e.Register(ctx, RegisterRequest{
		Email: "long2@example.com", Password: overlong, Name: "Long", Company: "acme",
	})
	r := Failure(err)
	if r.Code != CodeValidationError || r.Status() != 400 || len(r.Errors) == 0 || r.Errors[0].Field != "password" {
		t.Fatalf("expected password VALIDATION_ERROR, got %+v", r)
	}

	err = e.ChangePassword(ctx, s.Tokens.AccessToken, testPassword, overlong)
	r = Failure(err)
	if r.Code != CodeValidationError || len(r.Errors) == 0 || r.Errors[0].Field != "newPassword" {
		t.Fatalf("expected newPassword VALIDATION_ERROR, got %+v", r)
	}
}

func TestVerifierInputRefusalIsValidationError(t *testing.T) {
	bcrypt, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	const refused = "Refused1Secret"
	withVerifier := func(b *Builder, _ *Config) {
		b.WithVerifier(refusingVerifier{CredentialVerifier: bcrypt, refuse: refused})
	}
	store := newMockUserStore()
	e := newTestEngine(t, store, newTestClock(), withVerifier)
	s := register(t, e, "refuse@example.com", "acme")
	ctx := context.Background()

	_, err = e.Register(ctx, RegisterRequest{
		Email: "refuse2@example.com", Password: refused, Name: "Refused", Company: "acme",
	})
	if CodeOf(err) != CodeValidationError || errors.Is(err, ErrVerifierUnavailable) {
		t.Fatalf("expected VALIDATION_ERROR from Register, got %v", err)
	}

	err = e.ChangePassword(ctx, s.Tokens.AccessToken, testPassword, refused)
	r := Failure(err)
	if r.Code != CodeValidationError || len(r.Errors) == 0 || r.Errors[0].Field != "newPassword" {
		t.Fatalf("expected newPassword VALIDATION_ERROR from ChangePassword, got %+v", r)
	}
}

func TestLoginUpgradesWeakDigest(t *testing.T) {
	store := newMockUserStore()
	weak, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	digest, err := weak.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	store.put(UserRecord{ID: "u-9", Email: "old@example.com", PasswordHash: digest, Role: "user", Company: "acme"})

	cfg := testConfig()
	cfg.Password.BcryptCost = 5
	e, err := New().WithConfig(cfg).WithUserProvider(store).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	if _, err := e.Login(context.Background(), "old@example.com", testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if store.updatePasswordCalls != 1 {
		t.Fatalf("expected digest upgrade, got %d updates", store.updatePasswordCalls)
	}
}

func TestWhoAmIVanishedUser(t *testing.T) {
	store := newMockUserStore()
	e := newTestEngine(t, store, newTestClock())
	s := register(t, e, "gone@example.com", "acme")

	store.mu.Lock()
	delete(store.users, s.User.ID)
	store.mu.Unlock()

	if _, err := e.WhoAmI(context.Background(), s.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRegisterWithoutCreatorUnsupported(t *testing.T) {
	// Only the UserProvider methods are promoted, hiding CreateUser.
	up := struct{ UserProvider }{newMockUserStore()}
	e, err := New().WithConfig(testConfig()).WithUserProvider(up).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	_, err = e.Register(context.Background(), RegisterRequest{Email: "x@example.com", Password: testPassword, Name: "X Y", Company: "acme"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

type brokenVerifier struct{}

func (brokenVerifier) Hash(string) (string, error)          { return "", errors.New("hasher offline") }
func (brokenVerifier) Compare(string, string) (bool, error) { return false, errors.New("hasher offline") }

func TestBuildFailsClosedOnMisconfiguredVerifier(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.AccessSecret = "short"
	_, err := New().WithConfig(cfg).WithUserProvider(newMockUserStore()).Build()
	if !errors.Is(err, ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable for short secret, got %v", err)
	}

	_, err = New().WithConfig(testConfig()).WithUserProvider(newMockUserStore()).WithVerifier(brokenVerifier{}).Build()
	if !errors.Is(err, ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable for broken hasher, got %v", err)
	}

	cfg = testConfig()
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.AccessPublicKey = "not-a-key"
	cfg.JWT.RefreshPublicKey = "not-a-key-either"
	_, err = New().WithConfig(cfg).WithUserProvider(newMockUserStore()).Build()
	if !errors.Is(err, ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable for bad ed25519 keys, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithUserProvider(newMockUserStore())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestScreenRateLimitsAuthClass(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(t, newMockUserStore(), clock)
	ctx := context.Background()

	req := func() *security.Request {
		return &security.Request{
			ClientAddr: "203.0.113.7",
			Class:      security.RouteAuth,
			Endpoint:   security.EndpointLogin,
			Body:       map[string]any{"email": "a@example.com", "password": "x"},
		}
	}
	for i := 0; i < 5; i++ {
		if err := e.Screen(ctx, req()); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	err := e.Screen(ctx, req())
	r := Failure(err)
	if r.Code != CodeRateLimited || r.RetryAfter <= 0 || r.Status() != 429 {
		t.Fatalf("expected RATE_LIMITED with retry, got %+v", r)
	}
	if !errors.Is(err, ErrRateLimited) || errors.Is(err, ErrValidation) {
		t.Fatalf("expected error to match ErrRateLimited only, got %v", err)
	}

	// General routes are counted separately.
	general := &security.Request{ClientAddr: "203.0.113.7", Class: security.RouteGeneral}
	if err := e.Screen(ctx, general); err != nil {
		t.Fatalf("general request: %v", err)
	}

	clock.Advance(15 * time.Minute)
	if err := e.Screen(ctx, req()); err != nil {
		t.Fatalf("request after window: %v", err)
	}
}

func TestScreenRejectsInjectionAndSanitizes(t *testing.T) {
	e := newTestEngine(t, newMockUserStore(), newTestClock())
	ctx := context.Background()

	bad := &security.Request{
		ClientAddr: "198.51.100.1",
		Class:      security.RouteAuth,
		Endpoint:   security.EndpointLogin,
		Body:       map[string]any{"email": map[string]any{"$ne": ""}, "password": "x"},
	}
	r := Failure(e.Screen(ctx, bad))
	if r.Code != CodeValidationError || len(r.Errors) == 0 {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", r)
	}

	ok := &security.Request{
		ClientAddr: "198.51.100.2",
		Class:      security.RouteGeneral,
		Body:       map[string]any{"note": "  <b>hi</b>  "},
	}
	if err := e.Screen(ctx, ok); err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if got := ok.Body["note"]; got != "bhi/b" {
		t.Fatalf("body was not sanitized: %q", got)
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	sink := NewChannelAuditSink(16)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	e, err := New().WithConfig(cfg).WithUserProvider(newMockUserStore()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := e.Login(context.Background(), "ghost@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login: %v", err)
	}
	_ = e.Authorize(WithClientIP(context.Background(), "192.0.2.9"), &identity.Principal{
		ID: "1", Email: "u@acme", Role: permission.RoleUser, Company: "acme", Permissions: permission.NewSet(permission.Read),
	}, policy.Requirement{Resource: "GET /companies/globex", Tenant: "globex"})
	e.Close()

	var types []string
	var denied AuditEvent
	for len(sink.Events()) > 0 {
		ev := <-sink.Events()
		types = append(types, ev.EventType)
		if ev.EventType == AuditAccessDenied {
			denied = ev
		}
	}
	if len(types) != 2 || types[0] != AuditLoginFailure || types[1] != AuditAccessDenied {
		t.Fatalf("unexpected events %v", types)
	}
	if denied.Code != string(CodeCompanyAccessDenied) || denied.IP != "192.0.2.9" || denied.Actor != "u@acme" {
		t.Fatalf("unexpected deny event %+v", denied)
	}
	if denied.Timestamp.IsZero() {
		t.Fatal("deny event missing timestamp")
	}
}

func TestSecurityReport(t *testing.T) {
	e := newTestEngine(t, newMockUserStore(), newTestClock(), withRevocation())
	r := e.SecurityReport()
	if r.SigningAlgorithm != "HS256" || r.PasswordScheme != "bcrypt" || !r.RevocationAttached {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.RateLimit.AuthMaxRequests != 5 || r.RateLimitStore != "memory" {
		t.Fatalf("unexpected limiter report %+v", r.RateLimit)
	}
}
