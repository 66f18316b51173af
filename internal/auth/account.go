package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
	"github.com/ovaphlow/pitchfork/service-auth-core/pkg/utilities"
)

// NewAccount is the signup payload. Empty strings mean absent.
type NewAccount struct {
	Email            string `json:"email"`
	PhoneNumber      string `json:"phone_number"`
	PhoneCountryCode string `json:"phone_country_code"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	GoogleID         string `json:"google_id"`
	GoogleImageURL   string `json:"google_image_url"`
	ImageURL         string `json:"image_url"`
	DeviceID         string `json:"device_id"`
	IsSuperuser      bool   `json:"-"`
}

// SyncAccount mirrors an account owned by another system. An existing ID only
// has its email refreshed; an unknown one is created verified.
type SyncAccount struct {
	ID string `json:"id"`
	NewAccount
	IsActive bool `json:"is_active"`
}

// LoginRequest identifies the account by email or by phone pair.
type LoginRequest struct {
	Email            string `json:"email"`
	PhoneNumber      string `json:"phone_number"`
	PhoneCountryCode string `json:"phone_country_code"`
	Password         string `json:"password"`
}

// Session is the result of a successful login.
type Session struct {
	User         *entity.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"-"`
	ExpiresIn    int64        `json:"expires_in"`
}

func (a *NewAccount) normalize() {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.PhoneNumber = strings.TrimSpace(a.PhoneNumber)
	a.PhoneCountryCode = strings.TrimSpace(a.PhoneCountryCode)
}

// validateContact enforces the email / phone rules of an account.
func (s *Service) validateContact(a NewAccount) error {
	if a.Email == "" && a.PhoneNumber == "" {
		return oops.Code("CONTACT_REQUIRED").Wrap(ErrValidation)
	}
	if a.PhoneNumber != "" && a.PhoneCountryCode == "" {
		return oops.Code("COUNTRY_CODE_REQUIRED").Wrap(ErrValidation)
	}
	if a.PhoneNumber == "" && a.PhoneCountryCode != "" {
		return oops.Code("PHONE_NUMBER_REQUIRED").Wrap(ErrValidation)
	}
	if a.PhoneCountryCode != "" && !s.dialCodes(a.PhoneCountryCode) {
		return oops.Code("COUNTRY_CODE_INVALID").With("country_code", a.PhoneCountryCode).Wrap(ErrValidation)
	}
	if a.Email != "" {
		if addr, err := mail.ParseAddress(a.Email); err != nil || addr.Address != a.Email {
			return oops.Code("EMAIL_INVALID").With("email", a.Email).Wrap(ErrValidation)
		}
	}
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) newUser(id string, a NewAccount, hash string) *entity.User {
	now := s.now()
	return &entity.User{
		ID:               id,
		Email:            optional(a.Email),
		PhoneNumber:      optional(a.PhoneNumber),
		PhoneCountryCode: optional(a.PhoneCountryCode),
		PasswordHash:     hash,
		FirstName:        optional(a.FirstName),
		LastName:         optional(a.LastName),
		IsActive:         true,
		IsSuperuser:      a.IsSuperuser,
		GoogleID:         optional(a.GoogleID),
		GoogleImageURL:   optional(a.GoogleImageURL),
		ImageURL:         optional(a.ImageURL),
		DeviceID:         optional(a.DeviceID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ensureUnique fails with ErrConflict when the email or phone pair is taken.
func ensureUnique(ctx context.Context, q Queries, a NewAccount) error {
	if a.Email != "" {
		_, err := q.GetUserByEmail(ctx, a.Email)
		if err == nil {
			return oops.Code("EMAIL_TAKEN").With("email", a.Email).Wrap(ErrConflict)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if a.PhoneNumber != "" {
		_, err := q.GetUserByPhone(ctx, a.PhoneNumber, a.PhoneCountryCode)
		if err == nil {
			return oops.Code("PHONE_TAKEN").With("phone_number", a.PhoneNumber).Wrap(ErrConflict)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// CreateAccount registers a new, unverified account. All input checks run
// before anything is written.
func (s *Service) CreateAccount(ctx context.Context, a NewAccount) (*entity.User, error) {
	a.normalize()
	if err := s.validateContact(a); err != nil {
		return nil, err
	}
	if a.Password == "" {
		return nil, oops.Code("PASSWORD_REQUIRED").Wrap(ErrValidation)
	}
	hash, err := s.hasher.Hash(a.Password)
	if err != nil {
		return nil, err
	}

	u := s.newUser(utilities.NewSnowflakeID(), a, hash)
	err = s.store.WithTx(ctx, func(q Queries) error {
		if err := ensureUnique(ctx, q, a); err != nil {
			return err
		}
		return q.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("email", a.Email).Wrap(err)
	}
	s.logger.Infow("account created", "user_id", u.ID)
	return u, nil
}

// SyncAccount upserts an account by id. The boolean reports whether an
// existing account was updated.
func (s *Service) SyncAccount(ctx context.Context, in SyncAccount) (*entity.User, bool, error) {
	in.normalize()
	if in.Email != "" {
		if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
			return nil, false, oops.Code("EMAIL_INVALID").With("email", in.Email).Wrap(ErrValidation)
		}
	}

	var (
		out     *entity.User
		updated bool
	)
	if in.ID != "" {
		err := s.store.WithTx(ctx, func(q Queries) error {
			u, err := q.GetUserByID(ctx, in.ID)
			if err != nil {
				return err
			}
			if in.Email == "" && u.PhoneNumber == nil {
				return oops.Code("CONTACT_REQUIRED").With("user_id", u.ID).Wrap(ErrValidation)
			}
			u.Email = optional(in.Email)
			u.UpdatedAt = s.now()
			if err := q.UpdateUser(ctx, u); err != nil {
				return err
			}
			out, updated = u, true
			return nil
		})
		switch {
		case err == nil:
			return out, updated, nil
		case !errors.Is(err, ErrNotFound):
			return nil, false, oops.Code("ACCOUNT_SYNC_FAILED").With("user_id", in.ID).Wrap(err)
		}
	}

	if err := s.validateContact(in.NewAccount); err != nil {
		return nil, false, err
	}
	var hash string
	if in.Password != "" {
		h, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, false, err
		}
		hash = h
	}
	id := in.ID
	if id == "" {
		id = utilities.NewSnowflakeID()
	}
	u := s.newUser(id, in.NewAccount, hash)
	u.IsActive = in.IsActive
	u.IsVerified = true
	err := s.store.WithTx(ctx, func(q Queries) error {
		if err := ensureUnique(ctx, q, in.NewAccount); err != nil {
			return err
		}
		return q.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, false, oops.Code("ACCOUNT_SYNC_FAILED").With("user_id", id).Wrap(err)
	}
	return u, false, nil
}

// Login checks a password and issues an access and a refresh token. Unknown
// accounts, wrong passwords and inactive accounts all fail with ErrUnauthenticated.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	var (
		u   *entity.User
		err error
	)
	switch {
	case email != "":
		u, err = s.store.GetUserByEmail(ctx, email)
	case req.PhoneNumber != "" && req.PhoneCountryCode != "":
		u, err = s.store.GetUserByPhone(ctx, strings.TrimSpace(req.PhoneNumber), strings.TrimSpace(req.PhoneCountryCode))
	default:
		return nil, oops.Code("LOGIN_IDENTIFIER_REQUIRED").Wrap(ErrValidation)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("BAD_CREDENTIALS").Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("LOGIN_LOOKUP_FAILED").Wrap(err)
	}
	if !s.hasher.Verify(u.PasswordHash, req.Password) {
		return nil, oops.Code("BAD_CREDENTIALS").With("user_id", u.ID).Wrap(ErrUnauthenticated)
	}
	if !u.IsActive || u.IsDeleted {
		return nil, oops.Code("ACCOUNT_DISABLED").With("user_id", u.ID).Wrap(ErrUnauthenticated)
	}

	access, err := s.IssueAccessToken(ctx, u.ID, nil)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(ctx, u.ID, nil)
	if err != nil {
		return nil, err
	}

	who := u.EmailOrEmpty()
	if who == "" && u.PhoneNumber != nil {
		who = *u.PhoneNumber
	}
	s.notifyAsync(ctx, "New login from "+who)
	s.logger.Infow("login", "user_id", u.ID)

	return &Session{
		User:         u,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// FindUserByEmail looks an account up by its (case-insensitive) email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, oops.Code("EMAIL_REQUIRED").Wrap(ErrValidation)
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").With("email", email).Wrap(err)
	}
	return u, nil
}

func (s *Service) FindUserByPhone(ctx context.Context, number, countryCode string) (*entity.User, error) {
	if number == "" || countryCode == "" {
		return nil, oops.Code("PHONE_REQUIRED").Wrap(ErrValidation)
	}
	u, err := s.store.GetUserByPhone(ctx, number, countryCode)
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").With("phone_number", number).Wrap(err)
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").With("user_id", id).Wrap(err)
	}
	return u, nil
}
