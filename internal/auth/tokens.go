package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-core/pkg/utilities"
)

const (
	claimUserID  = "user_id"
	claimTokenID = "jti"
)

// sign adds the owning user and a unique token id to claims and signs them with ttl.
func (s *Service) sign(userID string, claims token.Claims, ttl time.Duration) (string, error) {
	c := make(token.Claims, len(claims)+2)
	for k, v := range claims {
		c[k] = v
	}
	c[claimUserID] = userID
	c[claimTokenID] = uuid.NewString()
	return s.codec.Sign(c, s.now().Add(ttl))
}

// IssueAccessToken mints a signed access token and persists it for userID.
// Prior tokens of the same user are left in place; Logout removes them.
func (s *Service) IssueAccessToken(ctx context.Context, userID string, claims token.Claims) (string, error) {
	signed, err := s.sign(userID, claims, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", oops.Code("ACCESS_TOKEN_ISSUE_FAILED").With("user_id", userID).Wrap(err)
	}
	row := &entity.AccessToken{
		ID:        utilities.NewRowID(),
		UserID:    userID,
		Token:     signed,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAccessToken(ctx, row); err != nil {
		return "", oops.Code("ACCESS_TOKEN_ISSUE_FAILED").With("user_id", userID).Wrap(err)
	}
	s.metrics.Issued("access_token", "created")
	return signed, nil
}

// IssueRefreshToken mints a signed refresh token. Refresh tokens are not persisted.
func (s *Service) IssueRefreshToken(_ context.Context, userID string, claims token.Claims) (string, error) {
	signed, err := s.sign(userID, claims, s.cfg.RefreshTokenTTL)
	if err != nil {
		return "", oops.Code("REFRESH_TOKEN_ISSUE_FAILED").With("user_id", userID).Wrap(err)
	}
	s.metrics.Issued("refresh_token", "created")
	return signed, nil
}

// ValidateAccessToken resolves the identity behind an access token. The token
// must still be present in the store and carry a valid signature and expiry.
func (s *Service) ValidateAccessToken(ctx context.Context, tok string) (*entity.Identity, error) {
	u, err := s.validateAccess(ctx, tok)
	if err != nil {
		return nil, err
	}
	return &entity.Identity{UserID: u.ID, Email: u.EmailOrEmpty()}, nil
}

// ValidateRefreshToken resolves the identity behind a refresh token from its
// signature and expiry alone.
func (s *Service) ValidateRefreshToken(ctx context.Context, tok string) (*entity.Identity, error) {
	u, err := s.validateRefresh(ctx, tok)
	if err != nil {
		return nil, err
	}
	return &entity.Identity{UserID: u.ID, Email: u.EmailOrEmpty()}, nil
}

func (s *Service) validateAccess(ctx context.Context, tok string) (*entity.User, error) {
	if tok == "" {
		return nil, oops.Code("ACCESS_TOKEN_MISSING").Wrap(ErrUnauthenticated)
	}
	row, err := s.store.GetAccessToken(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Validated("access_token", "revoked")
			return nil, oops.Code("ACCESS_TOKEN_REVOKED").Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("ACCESS_TOKEN_LOOKUP_FAILED").Wrap(err)
	}
	claims, err := s.codec.Verify(tok)
	if err != nil {
		return nil, s.tokenRejected("access_token", err, ErrUnauthenticated, errExpiredUnauthenticated)
	}
	if userID, ok := claims.String(claimUserID); !ok || userID != row.UserID {
		s.metrics.Validated("access_token", "invalid")
		return nil, oops.Code("ACCESS_TOKEN_INVALID").With("user_id", row.UserID).Wrap(ErrUnauthenticated)
	}
	u, err := s.activeUser(ctx, s.store, row.UserID)
	if err != nil {
		return nil, err
	}
	s.metrics.Validated("access_token", "ok")
	return u, nil
}

func (s *Service) validateRefresh(ctx context.Context, tok string) (*entity.User, error) {
	if tok == "" {
		return nil, oops.Code("REFRESH_TOKEN_MISSING").Wrap(ErrUnauthenticated)
	}
	claims, err := s.codec.Verify(tok)
	if err != nil {
		return nil, s.tokenRejected("refresh_token", err, ErrUnauthenticated, errExpiredUnauthenticated)
	}
	userID, ok := claims.String(claimUserID)
	if !ok {
		s.metrics.Validated("refresh_token", "invalid")
		return nil, oops.Code("REFRESH_TOKEN_INVALID").Wrap(ErrUnauthenticated)
	}
	u, err := s.activeUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	s.metrics.Validated("refresh_token", "ok")
	return u, nil
}

// activeUser loads a user for authentication. Missing, inactive and
// soft-deleted users are all reported as ErrUnauthenticated so callers cannot
// tell them apart.
func (s *Service) activeUser(ctx context.Context, q Queries, userID string) (*entity.User, error) {
	u, err := q.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TOKEN_USER_UNKNOWN").With("user_id", userID).Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("TOKEN_USER_LOOKUP_FAILED").With("user_id", userID).Wrap(err)
	}
	if u.IsDeleted || !u.IsActive {
		return nil, oops.Code("TOKEN_USER_DISABLED").With("user_id", userID).Wrap(ErrUnauthenticated)
	}
	return u, nil
}

// tokenRejected maps a codec failure onto the caller's taxonomy.
func (s *Service) tokenRejected(kind string, err error, invalid, expired error) error {
	if errors.Is(err, token.ErrExpired) {
		s.metrics.Validated(kind, "expired")
		return oops.Code("TOKEN_EXPIRED").With("kind", kind).Wrap(expired)
	}
	s.metrics.Validated(kind, "invalid")
	return oops.Code("TOKEN_INVALID").With("kind", kind).With("reason", err.Error()).Wrap(invalid)
}

// Logout deletes every persisted access token of the user.
// It returns ErrNotFound when the user had no live access token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	n, err := s.store.DeleteAccessTokensByUser(ctx, userID)
	if err != nil {
		return oops.Code("LOGOUT_FAILED").With("user_id", userID).Wrap(err)
	}
	if n == 0 {
		return oops.Code("LOGOUT_NO_SESSION").With("user_id", userID).Wrap(ErrNotFound)
	}
	s.logger.Debugw("logout", "user_id", userID, "tokens", n)
	return nil
}
