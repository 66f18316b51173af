package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
)

// Credential is what a request presents to prove who it is: either a
// BearerCredential or an APIKeyCredential.
type Credential interface {
	credential()
}

// BearerCredential carries an access token from the Authorization header.
type BearerCredential struct {
	Token string
}

// APIKeyCredential carries an application id and its key.
type APIKeyCredential struct {
	AppID string
	Key   string
}

func (BearerCredential) credential() {}
func (APIKeyCredential) credential() {}

// APIKeyChecker resolves the user an application key acts for. Unknown or
// wrong keys return an error wrapping ErrUnauthenticated.
type APIKeyChecker interface {
	CheckAPIKey(ctx context.Context, appID, key string) (*entity.User, error)
}

// UserGetter is the lookup StaticAPIKeyChecker needs.
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (*entity.User, error)
}

// APIKey binds an application id and key to the user it acts for.
type APIKey struct {
	AppID  string
	Key    string
	UserID string
}

// StaticAPIKeyChecker serves a fixed set of application keys.
type StaticAPIKeyChecker struct {
	keys  map[string]APIKey
	users UserGetter
}

func NewStaticAPIKeyChecker(users UserGetter, keys []APIKey) *StaticAPIKeyChecker {
	m := make(map[string]APIKey, len(keys))
	for _, k := range keys {
		m[k.AppID] = k
	}
	return &StaticAPIKeyChecker{keys: m, users: users}
}

func (c *StaticAPIKeyChecker) CheckAPIKey(ctx context.Context, appID, key string) (*entity.User, error) {
	k, ok := c.keys[appID]
	if !ok || !ConstantTimeCompare(k.Key, key) {
		return nil, oops.Code("API_KEY_INVALID").With("app_id", appID).Wrap(ErrUnauthenticated)
	}
	u, err := c.users.GetUserByID(ctx, k.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("API_KEY_USER_UNKNOWN").With("app_id", appID).Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("API_KEY_LOOKUP_FAILED").With("app_id", appID).Wrap(err)
	}
	return u, nil
}

// Authenticator resolves the user behind a request. A bearer token is tried
// first, then the refresh cookie, and an API key pair only when no bearer
// token was sent. It never issues new tokens.
type Authenticator struct {
	svc     *Service
	apiKeys APIKeyChecker
}

// NewAuthenticator returns an Authenticator. apiKeys may be nil, in which
// case API key credentials are always rejected.
func NewAuthenticator(svc *Service, apiKeys APIKeyChecker) *Authenticator {
	return &Authenticator{svc: svc, apiKeys: apiKeys}
}

// Resolve returns the caller's user or an error wrapping ErrUnauthenticated.
// Store failures are returned as they are.
func (a *Authenticator) Resolve(ctx context.Context, cred Credential, refreshCookie string) (*entity.User, error) {
	switch c := cred.(type) {
	case BearerCredential:
		if c.Token != "" {
			return a.resolveBearer(ctx, c.Token, refreshCookie)
		}
	case APIKeyCredential:
		if c.AppID != "" && c.Key != "" {
			return a.resolveAPIKey(ctx, c)
		}
	}
	a.svc.metrics.Authenticated("none")
	return nil, oops.Code("CREDENTIALS_MISSING").Wrap(ErrUnauthenticated)
}

func (a *Authenticator) resolveBearer(ctx context.Context, tok, refreshCookie string) (*entity.User, error) {
	u, err := a.svc.validateAccess(ctx, tok)
	if err == nil {
		a.svc.metrics.Authenticated("bearer")
		return u, nil
	}
	if !errors.Is(err, ErrUnauthenticated) || refreshCookie == "" {
		a.svc.metrics.Authenticated("none")
		return nil, err
	}

	u, err = a.svc.validateRefresh(ctx, refreshCookie)
	if err != nil {
		a.svc.metrics.Authenticated("none")
		return nil, err
	}
	a.svc.metrics.Authenticated("refresh_cookie")
	return u, nil
}

func (a *Authenticator) resolveAPIKey(ctx context.Context, c APIKeyCredential) (*entity.User, error) {
	if a.apiKeys == nil {
		a.svc.metrics.Authenticated("none")
		return nil, oops.Code("API_KEYS_DISABLED").Wrap(ErrUnauthenticated)
	}
	u, err := a.apiKeys.CheckAPIKey(ctx, c.AppID, c.Key)
	if err != nil {
		a.svc.metrics.Authenticated("none")
		return nil, err
	}
	if u.IsDeleted || !u.IsActive {
		a.svc.metrics.Authenticated("none")
		return nil, oops.Code("API_KEY_USER_DISABLED").With("app_id", c.AppID).Wrap(ErrUnauthenticated)
	}
	a.svc.metrics.Authenticated("api_key")
	return u, nil
}
