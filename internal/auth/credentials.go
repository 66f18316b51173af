package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/otp"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-core/pkg/utilities"
)

// maxGenerateAttempts bounds how often a fresh value is drawn when it collides
// with a live credential of the same kind.
const maxGenerateAttempts = 5

type generateFunc func() (value string, expiresAt *time.Time, err error)

// issueOrRotate keeps at most one live credential of kind for userID. When
// reuse reports the existing row as still usable it is returned unchanged;
// otherwise the row is deleted and a fresh value inserted in the same unit of work.
func (s *Service) issueOrRotate(ctx context.Context, kind entity.CredentialKind, userID string,
	reuse func(*entity.Credential) bool, generate generateFunc) (string, error) {
	var (
		value   string
		outcome string
	)
	err := s.store.WithTx(ctx, func(q Queries) error {
		if _, err := q.GetUserByID(ctx, userID); err != nil {
			return err
		}

		existing, err := q.GetCredentialByUser(ctx, kind, userID)
		switch {
		case errors.Is(err, ErrNotFound):
			existing = nil
		case err != nil:
			return err
		}

		outcome = "created"
		if existing != nil {
			if reuse != nil && reuse(existing) {
				value, outcome = existing.Value, "reused"
				return nil
			}
			if err := q.DeleteCredential(ctx, existing.ID); err != nil {
				return err
			}
			outcome = "rotated"
		}

		v, expiresAt, err := s.freshValue(ctx, q, kind, generate)
		if err != nil {
			return err
		}
		if err := q.CreateCredential(ctx, &entity.Credential{
			ID:        utilities.NewRowID(),
			UserID:    userID,
			Kind:      kind,
			Value:     v,
			ExpiresAt: expiresAt,
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		s.metrics.Issued(string(kind), "failed")
		return "", oops.Code("CREDENTIAL_ISSUE_FAILED").
			With("kind", string(kind)).
			With("user_id", userID).
			Wrap(err)
	}
	s.metrics.Issued(string(kind), outcome)
	s.logger.Debugw("credential issued", "kind", kind, "user_id", userID, "outcome", outcome)
	return value, nil
}

func (s *Service) freshValue(ctx context.Context, q Queries, kind entity.CredentialKind, generate generateFunc) (string, *time.Time, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		v, expiresAt, err := generate()
		if err != nil {
			return "", nil, err
		}
		_, err = q.GetCredentialByValue(ctx, kind, v)
		if errors.Is(err, ErrNotFound) {
			return v, expiresAt, nil
		}
		if err != nil {
			return "", nil, err
		}
	}
	return "", nil, oops.Code("CREDENTIAL_VALUE_EXHAUSTED").
		With("kind", string(kind)).
		With("attempts", maxGenerateAttempts).
		Wrap(ErrConflict)
}

func (s *Service) codeLength(length int) (int, error) {
	if length == 0 {
		length = s.cfg.CodeLength
	}
	if length < otp.MinLength || length > otp.MaxLength {
		return 0, oops.Code("CODE_LENGTH_INVALID").
			With("length", length).
			With("min", otp.MinLength).
			With("max", otp.MaxLength).
			Wrap(ErrValidation)
	}
	return length, nil
}

func (s *Service) issueCode(ctx context.Context, kind entity.CredentialKind, userID string, length int) (string, error) {
	n, err := s.codeLength(length)
	if err != nil {
		return "", err
	}
	return s.issueOrRotate(ctx, kind, userID, nil, func() (string, *time.Time, error) {
		code, err := otp.Generate(n)
		if err != nil {
			return "", nil, err
		}
		if s.cfg.CodeTTL <= 0 {
			return code, nil, nil
		}
		exp := s.now().Add(s.cfg.CodeTTL)
		return code, &exp, nil
	})
}

// IssueVerificationCode replaces the user's verification code with a fresh
// one. A zero length selects the configured default.
func (s *Service) IssueVerificationCode(ctx context.Context, userID string, length int) (string, error) {
	return s.issueCode(ctx, entity.KindVerificationCode, userID, length)
}

// IssuePasswordResetCode replaces the user's password reset code with a fresh one.
func (s *Service) IssuePasswordResetCode(ctx context.Context, userID string, length int) (string, error) {
	return s.issueCode(ctx, entity.KindPasswordResetCode, userID, length)
}

func (s *Service) issueToken(ctx context.Context, kind entity.CredentialKind, userID string, ttl time.Duration) (string, error) {
	reuse := func(c *entity.Credential) bool {
		claims, err := s.codec.Verify(c.Value)
		if err != nil {
			return false
		}
		owner, ok := claims.String(claimUserID)
		return ok && owner == userID
	}
	return s.issueOrRotate(ctx, kind, userID, reuse, func() (string, *time.Time, error) {
		tok, err := s.sign(userID, token.Claims{"kind": string(kind)}, ttl)
		return tok, nil, err
	})
}

// IssueVerificationToken returns the user's verification token, reusing the
// stored one while it still validates.
func (s *Service) IssueVerificationToken(ctx context.Context, userID string) (string, error) {
	return s.issueToken(ctx, entity.KindVerificationToken, userID, s.cfg.VerificationTokenTTL)
}

// IssuePasswordResetToken returns the user's password reset token, reusing the
// stored one while it still validates.
func (s *Service) IssuePasswordResetToken(ctx context.Context, userID string) (string, error) {
	return s.issueToken(ctx, entity.KindPasswordResetToken, userID, s.cfg.PasswordResetTokenTTL)
}

// CompleteVerification marks the owner of a verification token as verified
// and consumes the token.
func (s *Service) CompleteVerification(ctx context.Context, tok string) (*entity.User, error) {
	return s.consume(ctx, entity.KindVerificationToken, tok, func(u *entity.User) error {
		u.IsVerified = true
		return nil
	})
}

// ConsumeVerificationCode marks the owner of a verification code as verified
// and consumes the code so it cannot be replayed.
func (s *Service) ConsumeVerificationCode(ctx context.Context, code string) (*entity.User, error) {
	return s.consume(ctx, entity.KindVerificationCode, code, func(u *entity.User) error {
		u.IsVerified = true
		return nil
	})
}

// CompletePasswordResetWithCode sets a new password for the owner of code.
// The password update and the deletion of the code commit together.
func (s *Service) CompletePasswordResetWithCode(ctx context.Context, code, newPassword string) error {
	if newPassword == "" {
		return oops.Code("PASSWORD_REQUIRED").Wrap(ErrValidation)
	}
	_, err := s.consume(ctx, entity.KindPasswordResetCode, code, s.setPassword(newPassword))
	return err
}

// CompletePasswordResetWithToken sets a new password for the owner of a
// password reset token and consumes the token.
func (s *Service) CompletePasswordResetWithToken(ctx context.Context, tok, newPassword string) error {
	if newPassword == "" {
		return oops.Code("PASSWORD_REQUIRED").Wrap(ErrValidation)
	}
	_, err := s.consume(ctx, entity.KindPasswordResetToken, tok, s.setPassword(newPassword))
	return err
}

func (s *Service) setPassword(pw string) func(*entity.User) error {
	return func(u *entity.User) error {
		h, err := s.hasher.Hash(pw)
		if err != nil {
			return err
		}
		u.PasswordHash = h
		return nil
	}
}

// consume validates a one-time credential, applies fn to its owner and deletes
// the credential, all in one unit of work. Unknown or mismatched values are
// reported as ErrUnauthorized.
func (s *Service) consume(ctx context.Context, kind entity.CredentialKind, value string, fn func(*entity.User) error) (*entity.User, error) {
	var claimed string
	if kind.IsToken() {
		claims, err := s.codec.Verify(value)
		if err != nil {
			return nil, s.tokenRejected(string(kind), err, ErrUnauthorized, errExpiredUnauthorized)
		}
		claimed, _ = claims.String(claimUserID)
	}

	var out *entity.User
	err := s.store.WithTx(ctx, func(q Queries) error {
		row, err := q.GetCredentialByValue(ctx, kind, value)
		if errors.Is(err, ErrNotFound) {
			s.metrics.Validated(string(kind), "unknown")
			return oops.Code("CREDENTIAL_UNKNOWN").With("kind", string(kind)).Wrap(ErrUnauthorized)
		}
		if err != nil {
			return err
		}
		if row.ExpiredAt(s.now()) {
			s.metrics.Validated(string(kind), "expired")
			return oops.Code("CREDENTIAL_EXPIRED").With("kind", string(kind)).With("user_id", row.UserID).Wrap(errExpiredUnauthorized)
		}
		if kind.IsToken() && claimed != row.UserID {
			s.metrics.Validated(string(kind), "invalid")
			return oops.Code("CREDENTIAL_OWNER_MISMATCH").With("kind", string(kind)).Wrap(ErrUnauthorized)
		}

		u, err := q.GetUserByID(ctx, row.UserID)
		if err != nil {
			return err
		}
		if u.IsDeleted {
			return oops.Code("USER_DELETED").With("user_id", u.ID).Wrap(ErrNotFound)
		}
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = s.now()
		if err := q.UpdateUser(ctx, u); err != nil {
			return err
		}
		if err := q.DeleteCredential(ctx, row.ID); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Validated(string(kind), "ok")
	s.logger.Infow("credential consumed", "kind", kind, "user_id", out.ID)
	return out, nil
}
