package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
)

// Schema creates the tables the auth service needs (idempotent).
// Uniqueness of live credentials is enforced here, not only in the service.
const Schema = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email CITEXT UNIQUE,
  phone_number TEXT,
  phone_country_code TEXT,
  password_hash TEXT NOT NULL DEFAULT '',
  first_name TEXT,
  last_name TEXT,
  is_active BOOLEAN NOT NULL DEFAULT true,
  is_verified BOOLEAN NOT NULL DEFAULT false,
  is_superuser BOOLEAN NOT NULL DEFAULT false,
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  google_id TEXT,
  google_image_url TEXT,
  image_url TEXT,
  device_id TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (phone_number, phone_country_code),
  CHECK (email IS NOT NULL OR phone_number IS NOT NULL),
  CHECK ((phone_number IS NULL) = (phone_country_code IS NULL))
);
CREATE TABLE IF NOT EXISTS access_tokens (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  token TEXT NOT NULL UNIQUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_access_tokens_user_id ON access_tokens(user_id);
CREATE TABLE IF NOT EXISTS credentials (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  kind TEXT NOT NULL,
  value TEXT NOT NULL,
  expires_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (user_id, kind),
  UNIQUE (kind, value)
);
`

const userColumns = `id, email, phone_number, phone_country_code, password_hash,
	first_name, last_name, is_active, is_verified, is_superuser, is_deleted,
	google_id, google_image_url, image_url, device_id, created_at, updated_at`

const credentialColumns = `id, user_id, kind, value, expires_at, created_at`

// Postgres error codes mapped onto the auth taxonomy.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapErr translates driver errors into auth sentinels. code names the failed query.
func mapErr(err error, code string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return oops.Code(code).Wrap(auth.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return oops.Code(code).With("constraint", pqErr.Constraint).Wrap(auth.ErrConflict)
		case pgForeignKeyViolation:
			return oops.Code(code).With("constraint", pqErr.Constraint).Wrap(auth.ErrNotFound)
		case pgCheckViolation:
			return oops.Code(code).With("constraint", pqErr.Constraint).Wrap(auth.ErrValidation)
		}
	}
	return oops.Code(code).Wrap(err)
}

// queries runs statements against either the pool or a transaction. Row locks
// are only taken inside a transaction.
type queries struct {
	ext  sqlx.ExtContext
	inTx bool
}

func (q *queries) lockClause() string {
	if q.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func (q *queries) getUser(ctx context.Context, where string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := sqlx.GetContext(ctx, q.ext, &u, `SELECT `+userColumns+` FROM users WHERE `+where, args...); err != nil {
		return nil, mapErr(err, "USER_GET_FAILED")
	}
	return &u, nil
}

func (q *queries) GetUserByID(ctx context.Context, id string) (*entity.User, error) {
	return q.getUser(ctx, `id = $1`, id)
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	return q.getUser(ctx, `email = $1`, email)
}

func (q *queries) GetUserByPhone(ctx context.Context, number, countryCode string) (*entity.User, error) {
	return q.getUser(ctx, `phone_number = $1 AND phone_country_code = $2`, number, countryCode)
}

func (q *queries) CreateUser(ctx context.Context, u *entity.User) error {
	const stmt = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :phone_number, :phone_country_code, :password_hash,
			:first_name, :last_name, :is_active, :is_verified, :is_superuser, :is_deleted,
			:google_id, :google_image_url, :image_url, :device_id, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, q.ext, stmt, u)
	return mapErr(err, "USER_CREATE_FAILED")
}

func (q *queries) UpdateUser(ctx context.Context, u *entity.User) error {
	const stmt = `UPDATE users SET
			email = :email, phone_number = :phone_number, phone_country_code = :phone_country_code,
			password_hash = :password_hash, first_name = :first_name, last_name = :last_name,
			is_active = :is_active, is_verified = :is_verified, is_superuser = :is_superuser,
			is_deleted = :is_deleted, google_id = :google_id, google_image_url = :google_image_url,
			image_url = :image_url, device_id = :device_id, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, q.ext, stmt, u)
	if err != nil {
		return mapErr(err, "USER_UPDATE_FAILED")
	}
	return mustAffect(res, "USER_UPDATE_FAILED")
}

func (q *queries) GetAccessToken(ctx context.Context, token string) (*entity.AccessToken, error) {
	var t entity.AccessToken
	err := sqlx.GetContext(ctx, q.ext, &t, `SELECT id, user_id, token, created_at FROM access_tokens WHERE token = $1`, token)
	if err != nil {
		return nil, mapErr(err, "ACCESS_TOKEN_GET_FAILED")
	}
	return &t, nil
}

func (q *queries) CreateAccessToken(ctx context.Context, t *entity.AccessToken) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO access_tokens (id, user_id, token, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.UserID, t.Token, t.CreatedAt)
	return mapErr(err, "ACCESS_TOKEN_CREATE_FAILED")
}

func (q *queries) DeleteAccessTokensByUser(ctx context.Context, userID string) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, mapErr(err, "ACCESS_TOKEN_DELETE_FAILED")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(err, "ACCESS_TOKEN_DELETE_FAILED")
	}
	return n, nil
}

func (q *queries) GetCredentialByUser(ctx context.Context, kind entity.CredentialKind, userID string) (*entity.Credential, error) {
	var c entity.Credential
	err := sqlx.GetContext(ctx, q.ext, &c,
		`SELECT `+credentialColumns+` FROM credentials WHERE kind = $1 AND user_id = $2`+q.lockClause(),
		string(kind), userID)
	if err != nil {
		return nil, mapErr(err, "CREDENTIAL_GET_FAILED")
	}
	return &c, nil
}

func (q *queries) GetCredentialByValue(ctx context.Context, kind entity.CredentialKind, value string) (*entity.Credential, error) {
	var c entity.Credential
	err := sqlx.GetContext(ctx, q.ext, &c,
		`SELECT `+credentialColumns+` FROM credentials WHERE kind = $1 AND value = $2`+q.lockClause(),
		string(kind), value)
	if err != nil {
		return nil, mapErr(err, "CREDENTIAL_GET_FAILED")
	}
	return &c, nil
}

func (q *queries) CreateCredential(ctx context.Context, c *entity.Credential) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO credentials (`+credentialColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, string(c.Kind), c.Value, c.ExpiresAt, c.CreatedAt)
	return mapErr(err, "CREDENTIAL_CREATE_FAILED")
}

func (q *queries) DeleteCredential(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "CREDENTIAL_DELETE_FAILED")
	}
	return mustAffect(res, "CREDENTIAL_DELETE_FAILED")
}

func mustAffect(res sql.Result, code string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, code)
	}
	if n == 0 {
		return oops.Code(code).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Store is the Postgres-backed auth.Store.
type Store struct {
	queries
	db *sqlx.DB
}

var _ auth.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{queries: queries{ext: db}, db: db}
}

// EnsureSchema applies Schema. Prefer migrations in production.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return mapErr(err, "SCHEMA_APPLY_FAILED")
}

// WithTx runs fn in a database transaction. It commits when fn returns nil
// and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(q auth.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err, "TX_BEGIN_FAILED")
	}
	if err := fn(&queries{ext: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return mapErr(tx.Commit(), "TX_COMMIT_FAILED")
}
