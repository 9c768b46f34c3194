package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/permission"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature primitive for both token classes.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// MinHMACSecretBytes is the shortest HS256 secret NewManager accepts.
const MinHMACSecretBytes = 32

var (
	// ErrTokenInvalid wraps every parse, signature, type, and expiry failure.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSigningKey reports a key that cannot sign or verify.
	ErrSigningKey = errors.New("signing key misconfigured")
)

// TokenType distinguishes the two credential classes.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// KeyConfig holds the keys for one token class. For HS256 PrivateKey is the
// shared secret and PublicKey is ignored. For Ed25519 both accept raw key bytes
// or PEM; a missing PublicKey is derived from PrivateKey.
type KeyConfig struct {
	PrivateKey []byte
	PublicKey  []byte
}

// Config configures a Manager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	Access        KeyConfig
	Refresh       KeyConfig
	Issuer        string
	Audience      string
	Leeway        time.Duration
	Now           func() time.Time
}

// Claims is the wire shape of both token classes. The subject carries the
// principal id and the registered ID carries a per-token jti.
type Claims struct {
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Company     string    `json:"company,omitempty"`
	Permissions []string  `json:"permissions"`
	Type        TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is the credential pair returned by Mint and Rotate.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Verified is the outcome of a successful verification.
type Verified struct {
	Principal identity.Principal
	TokenID   string
	ExpiresAt time.Time
}

type keyset struct {
	sign   interface{}
	verify interface{}
}

// Manager is safe for concurrent use; it holds no mutable state after
// construction.
type Manager struct {
	config  Config
	roles   *permission.RoleTable
	method  jwt.SigningMethod
	access  keyset
	refresh keyset
	now     func() time.Time
}

// NewManager validates cfg and prepares both keysets. roles is consulted when
// decoding claims back into a Principal.
func NewManager(cfg Config, roles *permission.RoleTable) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if roles == nil {
		return nil, errors.New("role table required")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	m := &Manager{config: cfg, roles: roles, now: cfg.Now}
	if m.now == nil {
		m.now = time.Now
	}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		m.method = jwt.SigningMethodHS256
		if m.access, err = hmacKeyset("access", cfg.Access); err != nil {
			return nil, err
		}
		if m.refresh, err = hmacKeyset("refresh", cfg.Refresh); err != nil {
			return nil, err
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if m.access, err = edKeyset("access", cfg.Access); err != nil {
			return nil, err
		}
		if m.refresh, err = edKeyset("refresh", cfg.Refresh); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrSigningKey, cfg.SigningMethod)
	}

	if bytes.Equal(cfg.Access.PrivateKey, cfg.Refresh.PrivateKey) {
		return nil, fmt.Errorf("%w: access and refresh keys must differ", ErrSigningKey)
	}

	return m, nil
}

// Algorithm returns the pinned JWS algorithm name.
func (m *Manager) Algorithm() string {
	return m.method.Alg()
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Mint signs a fresh pair for p. Permissions are clamped to the role defaults
// before signing, so a minted token never carries more than its role allows.
// The only failure mode is a broken signing key.
func (m *Manager) Mint(p identity.Principal) (Pair, error) {
	now := m.now()
	perms := m.roles.Clamp(p.Role, p.Permissions).Strings()

	access, accessExp, err := m.sign(TokenAccess, p, perms, now, m.config.AccessTTL, m.access)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.sign(TokenRefresh, p, perms, now, m.config.RefreshTTL, m.refresh)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ParseAccess verifies an access token and returns its raw claims.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, TokenAccess, m.access)
}

// ParseRefresh verifies a refresh token and returns its raw claims.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, TokenRefresh, m.refresh)
}

// VerifyAccess verifies an access token and decodes its Principal.
func (m *Manager) VerifyAccess(tokenStr string) (Verified, error) {
	claims, err := m.ParseAccess(tokenStr)
	if err != nil {
		return Verified{}, err
	}
	return m.decode(claims)
}

// VerifyRefresh verifies a refresh token and decodes its Principal.
func (m *Manager) VerifyRefresh(tokenStr string) (Verified, error) {
	claims, err := m.ParseRefresh(tokenStr)
	if err != nil {
		return Verified{}, err
	}
	return m.decode(claims)
}

// Rotate verifies refreshToken and mints a brand-new pair from the embedded
// Principal. The presented token is not modified; it stays valid until its own
// expiry unless the caller records it elsewhere.
func (m *Manager) Rotate(refreshToken string) (Pair, Verified, error) {
	v, err := m.VerifyRefresh(refreshToken)
	if err != nil {
		return Pair{}, Verified{}, err
	}
	pair, err := m.Mint(v.Principal)
	if err != nil {
		return Pair{}, Verified{}, err
	}
	return pair, v, nil
}

func (m *Manager) sign(
	typ TokenType,
	p identity.Principal,
	perms []string,
	now time.Time,
	ttl time.Duration,
	keys keyset,
) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Email:       p.Email,
		Role:        string(p.Role),
		Company:     p.Company,
		Permissions: perms,
		Type:        typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(keys.sign)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	// NumericDate truncates to whole seconds on the wire.
	return signed, exp.Truncate(time.Second), nil
}

func (m *Manager) parse(tokenStr string, expected TokenType, keys keyset) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return keys.verify, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, jwt.ErrTokenInvalidClaims)
	}
	if claims.Type != expected {
		return nil, fmt.Errorf("%w: token type mismatch", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}

	return claims, nil
}

// decode turns claims into a Principal, re-validating role and permissions
// against the role table instead of trusting the token.
func (m *Manager) decode(claims *Claims) (Verified, error) {
	role, err := m.roles.Parse(claims.Role)
	if err != nil {
		return Verified{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	perms, err := m.roles.ParsePermissions(claims.Permissions)
	if err != nil {
		return Verified{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	defaults, _ := m.roles.Defaults(role)
	if !perms.SubsetOf(defaults) {
		return Verified{}, fmt.Errorf("%w: permissions exceed role %q", ErrTokenInvalid, role)
	}

	v := Verified{
		Principal: identity.Principal{
			ID:          claims.Subject,
			Email:       claims.Email,
			Role:        role,
			Company:     claims.Company,
			Permissions: perms,
		},
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		v.ExpiresAt = claims.ExpiresAt.Time
	}
	return v, nil
}

// Classify names the failure class of a verification error for logs. It never
// includes token content.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "algorithm"
	case errors.Is(err, permission.ErrUnknownRole), errors.Is(err, permission.ErrUnknownPermission):
		return "claims"
	default:
		return "invalid"
	}
}

func hmacKeyset(class string, kc KeyConfig) (keyset, error) {
	if len(kc.PrivateKey) < MinHMACSecretBytes {
		return keyset{}, fmt.Errorf("%w: hs256 %s secret must be at least %d bytes", ErrSigningKey, class, MinHMACSecretBytes)
	}
	secret := append([]byte(nil), kc.PrivateKey...)
	return keyset{sign: secret, verify: secret}, nil
}

func edKeyset(class string, kc KeyConfig) (keyset, error) {
	priv, err := parseEdPrivateKey(kc.PrivateKey)
	if err != nil {
		return keyset{}, fmt.Errorf("%w: %s: %v", ErrSigningKey, class, err)
	}
	pub, _ := priv.Public().(ed25519.PublicKey)
	if len(kc.PublicKey) > 0 {
		configured, err := parseEdPublicKey(kc.PublicKey)
		if err != nil {
			return keyset{}, fmt.Errorf("%w: %s: %v", ErrSigningKey, class, err)
		}
		if !configured.Equal(pub) {
			return keyset{}, fmt.Errorf("%w: %s public key does not match private key", ErrSigningKey, class)
		}
		pub = configured
	}
	return keyset{sign: priv, verify: pub}, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
