package entity

import "time"

// User represents an account row in the `users` table.
// Email and the (PhoneNumber, PhoneCountryCode) pair are each unique when present;
// at least one of them is always set. Rows are never removed, IsDeleted marks a soft delete.
type User struct {
	ID               string    `db:"id" json:"id"`
	Email            *string   `db:"email" json:"email,omitempty"`
	PhoneNumber      *string   `db:"phone_number" json:"phone_number,omitempty"`
	PhoneCountryCode *string   `db:"phone_country_code" json:"phone_country_code,omitempty"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	FirstName        *string   `db:"first_name" json:"first_name,omitempty"`
	LastName         *string   `db:"last_name" json:"last_name,omitempty"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	IsVerified       bool      `db:"is_verified" json:"is_verified"`
	IsSuperuser      bool      `db:"is_superuser" json:"is_superuser"`
	IsDeleted        bool      `db:"is_deleted" json:"is_deleted"`
	GoogleID         *string   `db:"google_id" json:"google_id,omitempty"`
	GoogleImageURL   *string   `db:"google_image_url" json:"google_image_url,omitempty"`
	ImageURL         *string   `db:"image_url" json:"image_url,omitempty"`
	DeviceID         *string   `db:"device_id" json:"device_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// EmailOrEmpty returns the email address or "" when the account is phone-only.
func (u *User) EmailOrEmpty() string {
	if u == nil || u.Email == nil {
		return ""
	}
	return *u.Email
}

// Identity is the minimal projection resolved from a validated token.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}
