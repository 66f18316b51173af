package entity

import "time"

// CredentialKind discriminates the one-time credentials a user may hold.
type CredentialKind string

const (
	KindVerificationCode   CredentialKind = "verification_code"
	KindPasswordResetCode  CredentialKind = "password_reset_code"
	KindVerificationToken  CredentialKind = "verification_token"
	KindPasswordResetToken CredentialKind = "password_reset_token"
)

// IsToken reports whether values of this kind are signed tokens rather than numeric codes.
func (k CredentialKind) IsToken() bool {
	return k == KindVerificationToken || k == KindPasswordResetToken
}

// Credential is a persisted one-time code or token. A user owns at most one
// live row per kind; the store enforces unique (user_id, kind) and (kind, value).
type Credential struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Kind      CredentialKind `db:"kind"`
	Value     string         `db:"value"`
	ExpiresAt *time.Time     `db:"expires_at"`
	CreatedAt time.Time      `db:"created_at"`
}

// ExpiredAt reports whether the credential is past its validity window at t.
// Token kinds carry their expiry inside the signed value and leave ExpiresAt nil.
func (c *Credential) ExpiredAt(t time.Time) bool {
	return c.ExpiresAt != nil && !t.Before(*c.ExpiresAt)
}

// AccessToken is the persisted record of an issued access token. Membership in
// the store is what keeps a signed token usable; logout deletes the row.
type AccessToken struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Token     string    `db:"token"`
	CreatedAt time.Time `db:"created_at"`
}

// DeviceToken is an opaque token bound to a device and the email of its user.
// There is at most one per device id.
type DeviceToken struct {
	DeviceID  string    `json:"device_id"`
	UserEmail string    `json:"user_email"`
	Token     string    `json:"token"`
	MaxAge    time.Time `json:"max_age"`
}

// ExpiredAt reports whether the device token may no longer be used at t.
func (d *DeviceToken) ExpiredAt(t time.Time) bool {
	return !t.Before(d.MaxAge)
}
