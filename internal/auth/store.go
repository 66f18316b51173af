package auth

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
)

// Queries are the point lookups and writes the credential lifecycle needs.
// Lookups that match nothing return an error wrapping ErrNotFound; inserts that
// violate a uniqueness rule return an error wrapping ErrConflict.
type Queries interface {
	GetUserByID(ctx context.Context, id string) (*entity.User, error)
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	GetUserByPhone(ctx context.Context, number, countryCode string) (*entity.User, error)
	CreateUser(ctx context.Context, u *entity.User) error
	UpdateUser(ctx context.Context, u *entity.User) error

	GetAccessToken(ctx context.Context, token string) (*entity.AccessToken, error)
	CreateAccessToken(ctx context.Context, t *entity.AccessToken) error
	// DeleteAccessTokensByUser returns the number of rows removed.
	DeleteAccessTokensByUser(ctx context.Context, userID string) (int64, error)

	// GetCredentialByUser locks the row for the rest of the unit of work where the store supports it.
	GetCredentialByUser(ctx context.Context, kind entity.CredentialKind, userID string) (*entity.Credential, error)
	GetCredentialByValue(ctx context.Context, kind entity.CredentialKind, value string) (*entity.Credential, error)
	CreateCredential(ctx context.Context, c *entity.Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// Store is a transactional credential store. Calls made on the Queries passed
// to fn commit together when fn returns nil and roll back otherwise.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// DeviceTokenStore keeps at most one token per device id.
type DeviceTokenStore interface {
	// GetDeviceToken returns an error wrapping ErrNotFound when no token exists for deviceID.
	GetDeviceToken(ctx context.Context, deviceID string) (*entity.DeviceToken, error)
	// PutDeviceToken replaces whatever token the device held.
	PutDeviceToken(ctx context.Context, t *entity.DeviceToken) error
}
