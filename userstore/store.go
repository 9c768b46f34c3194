package userstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/identity"
)

const pgErrUniqueViolation = "23505"

//go:embed schema.sql
var schema string

var (
	_ portalauth.UserProvider    = (*Store)(nil)
	_ portalauth.UserCreator     = (*Store)(nil)
	_ portalauth.PasswordUpdater = (*Store)(nil)
)

// Store implements the engine's user collaborators on Postgres.
type Store struct {
	db  *sql.DB
	now func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// Open connects with the pgx driver and applies pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		now:     time.Now,
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the users table and its indexes if needed. Statements run
// one at a time since the extended protocol rejects multi-statement strings.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("userstore migrate: %w", err)
		}
	}
	return nil
}

const selectUser = `select id, email, name, password_hash, role, company, permissions, status, created_at from users`

func (s *Store) FindByEmail(ctx context.Context, email string) (portalauth.UserRecord, bool, error) {
	return s.findOne(ctx, selectUser+` where email = $1`, identity.NormalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id string) (portalauth.UserRecord, bool, error) {
	return s.findOne(ctx, selectUser+` where id = $1`, id)
}

func (s *Store) findOne(ctx context.Context, query string, arg string) (portalauth.UserRecord, bool, error) {
	var (
		rec     portalauth.UserRecord
		rawPerm []byte
		status  int16
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&rec.ID, &rec.Email, &rec.Name, &rec.PasswordHash, &rec.Role, &rec.Company, &rawPerm, &status, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return portalauth.UserRecord{}, false, nil
	}
	if err != nil {
		return portalauth.UserRecord{}, false, fmt.Errorf("userstore lookup: %w", err)
	}
	if len(rawPerm) > 0 {
		if err := json.Unmarshal(rawPerm, &rec.Permissions); err != nil {
			return portalauth.UserRecord{}, false, fmt.Errorf("userstore permissions column: %w", err)
		}
	}
	rec.Status = portalauth.AccountStatus(status)
	return rec, true, nil
}

// CreateUser inserts a new active user. A duplicate email yields
// portalauth.ErrUserExists.
func (s *Store) CreateUser(ctx context.Context, in portalauth.CreateUserInput) (portalauth.UserRecord, error) {
	perms := in.Permissions
	if perms == nil {
		perms = []string{}
	}
	rawPerm, err := json.Marshal(perms)
	if err != nil {
		return portalauth.UserRecord{}, err
	}

	rec := portalauth.UserRecord{
		ID:           s.newID(),
		Email:        identity.NormalizeEmail(in.Email),
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		Company:      in.Company,
		Permissions:  perms,
		Status:       portalauth.AccountActive,
		CreatedAt:    s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		insert into users (id, email, name, password_hash, role, company, permissions, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, rec.ID, rec.Email, rec.Name, rec.PasswordHash, rec.Role, rec.Company, rawPerm, int16(rec.Status), rec.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return portalauth.UserRecord{}, portalauth.ErrUserExists
		}
		return portalauth.UserRecord{}, fmt.Errorf("userstore create: %w", err)
	}
	return rec, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash = $2, updated_at = $3 where id = $1`,
		userID, hash, s.now().UTC())
	if err != nil {
		return fmt.Errorf("userstore update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("userstore update password: %w", err)
	}
	if n == 0 {
		return portalauth.ErrUserNotFound
	}
	return nil
}

// SetStatus enables or disables an account.
func (s *Store) SetStatus(ctx context.Context, userID string, status portalauth.AccountStatus) error {
	res, err := s.db.ExecContext(ctx,
		`update users set status = $2, updated_at = $3 where id = $1`,
		userID, int16(status), s.now().UTC())
	if err != nil {
		return fmt.Errorf("userstore set status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return portalauth.ErrUserNotFound
	}
	return nil
}

func (s *Store) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
