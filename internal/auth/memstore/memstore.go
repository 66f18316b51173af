// Package memstore is an in-process auth.Store. Units of work are serialized
// behind one mutex and run against a private copy that replaces the live data
// only when the work succeeds. It backs the tests and `serve` without a database.
package memstore

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
)

type state struct {
	users        map[string]entity.User
	accessTokens map[string]entity.AccessToken // by token value
	credentials  map[string]entity.Credential  // by id
}

func newState() *state {
	return &state{
		users:        make(map[string]entity.User),
		accessTokens: make(map[string]entity.AccessToken),
		credentials:  make(map[string]entity.Credential),
	}
}

func (st *state) clone() *state {
	c := &state{
		users:        make(map[string]entity.User, len(st.users)),
		accessTokens: make(map[string]entity.AccessToken, len(st.accessTokens)),
		credentials:  make(map[string]entity.Credential, len(st.credentials)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.accessTokens {
		c.accessTokens[k] = v
	}
	for k, v := range st.credentials {
		c.credentials[k] = v
	}
	return c
}

func eq(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (st *state) GetUserByID(_ context.Context, id string) (*entity.User, error) {
	u, ok := st.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

func (st *state) GetUserByEmail(_ context.Context, email string) (*entity.User, error) {
	for _, u := range st.users {
		if u.Email != nil && *u.Email == email {
			return &u, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
}

func (st *state) GetUserByPhone(_ context.Context, number, countryCode string) (*entity.User, error) {
	for _, u := range st.users {
		if eq(u.PhoneNumber, &number) && eq(u.PhoneCountryCode, &countryCode) {
			return &u, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With("phone_number", number).Wrap(auth.ErrNotFound)
}

func (st *state) uniqueUser(u *entity.User) error {
	for id, o := range st.users {
		if id == u.ID {
			continue
		}
		if eq(o.Email, u.Email) {
			return oops.Code("USER_EMAIL_DUPLICATE").With("email", *u.Email).Wrap(auth.ErrConflict)
		}
		if eq(o.PhoneNumber, u.PhoneNumber) && eq(o.PhoneCountryCode, u.PhoneCountryCode) {
			return oops.Code("USER_PHONE_DUPLICATE").With("phone_number", *u.PhoneNumber).Wrap(auth.ErrConflict)
		}
	}
	return nil
}

func (st *state) CreateUser(_ context.Context, u *entity.User) error {
	if _, ok := st.users[u.ID]; ok {
		return oops.Code("USER_ID_DUPLICATE").With("user_id", u.ID).Wrap(auth.ErrConflict)
	}
	if err := st.uniqueUser(u); err != nil {
		return err
	}
	st.users[u.ID] = *u
	return nil
}

func (st *state) UpdateUser(_ context.Context, u *entity.User) error {
	if _, ok := st.users[u.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", u.ID).Wrap(auth.ErrNotFound)
	}
	if err := st.uniqueUser(u); err != nil {
		return err
	}
	st.users[u.ID] = *u
	return nil
}

func (st *state) GetAccessToken(_ context.Context, token string) (*entity.AccessToken, error) {
	t, ok := st.accessTokens[token]
	if !ok {
		return nil, oops.Code("ACCESS_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &t, nil
}

func (st *state) CreateAccessToken(_ context.Context, t *entity.AccessToken) error {
	if _, ok := st.users[t.UserID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", t.UserID).Wrap(auth.ErrNotFound)
	}
	if _, ok := st.accessTokens[t.Token]; ok {
		return oops.Code("ACCESS_TOKEN_DUPLICATE").With("user_id", t.UserID).Wrap(auth.ErrConflict)
	}
	st.accessTokens[t.Token] = *t
	return nil
}

func (st *state) DeleteAccessTokensByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for k, t := range st.accessTokens {
		if t.UserID == userID {
			delete(st.accessTokens, k)
			n++
		}
	}
	return n, nil
}

func (st *state) GetCredentialByUser(_ context.Context, kind entity.CredentialKind, userID string) (*entity.Credential, error) {
	for _, c := range st.credentials {
		if c.Kind == kind && c.UserID == userID {
			return &c, nil
		}
	}
	return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("kind", string(kind)).With("user_id", userID).Wrap(auth.ErrNotFound)
}

func (st *state) GetCredentialByValue(_ context.Context, kind entity.CredentialKind, value string) (*entity.Credential, error) {
	for _, c := range st.credentials {
		if c.Kind == kind && c.Value == value {
			return &c, nil
		}
	}
	return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("kind", string(kind)).Wrap(auth.ErrNotFound)
}

func (st *state) CreateCredential(_ context.Context, c *entity.Credential) error {
	if _, ok := st.users[c.UserID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", c.UserID).Wrap(auth.ErrNotFound)
	}
	for _, o := range st.credentials {
		if o.Kind != c.Kind {
			continue
		}
		if o.UserID == c.UserID || o.Value == c.Value {
			return oops.Code("CREDENTIAL_DUPLICATE").With("kind", string(c.Kind)).With("user_id", c.UserID).Wrap(auth.ErrConflict)
		}
	}
	st.credentials[c.ID] = *c
	return nil
}

func (st *state) DeleteCredential(_ context.Context, id string) error {
	if _, ok := st.credentials[id]; !ok {
		return oops.Code("CREDENTIAL_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	delete(st.credentials, id)
	return nil
}

// Store implements auth.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ auth.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn against a private copy of the data and publishes the copy
// when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(q auth.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.st.clone()
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserByID(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserByEmail(ctx, email)
}

func (s *Store) GetUserByPhone(ctx context.Context, number, countryCode string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserByPhone(ctx, number, countryCode)
}

func (s *Store) CreateUser(ctx context.Context, u *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateUser(ctx, u)
}

func (s *Store) UpdateUser(ctx context.Context, u *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateUser(ctx, u)
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*entity.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetAccessToken(ctx, token)
}

func (s *Store) CreateAccessToken(ctx context.Context, t *entity.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateAccessToken(ctx, t)
}

func (s *Store) DeleteAccessTokensByUser(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteAccessTokensByUser(ctx, userID)
}

func (s *Store) GetCredentialByUser(ctx context.Context, kind entity.CredentialKind, userID string) (*entity.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetCredentialByUser(ctx, kind, userID)
}

func (s *Store) GetCredentialByValue(ctx context.Context, kind entity.CredentialKind, value string) (*entity.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetCredentialByValue(ctx, kind, value)
}

func (s *Store) CreateCredential(ctx context.Context, c *entity.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateCredential(ctx, c)
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteCredential(ctx, id)
}

// Credentials returns the live credentials of kind held by userID.
func (s *Store) Credentials(kind entity.CredentialKind, userID string) []entity.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Credential
	for _, c := range s.st.credentials {
		if c.Kind == kind && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// AccessTokens returns the persisted access tokens of userID.
func (s *Store) AccessTokens(userID string) []entity.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.AccessToken
	for _, t := range s.st.accessTokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}
