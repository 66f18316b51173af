package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
	"github.com/ovaphlow/pitchfork/service-auth-core/pkg/utilities"
)

// IssueDeviceToken returns the token bound to the user's device, minting a new
// one when none exists, the stored one has expired, or it belongs to another
// user. A new token replaces the old one.
func (s *Service) IssueDeviceToken(ctx context.Context, u *entity.User) (*entity.DeviceToken, error) {
	if u == nil || u.DeviceID == nil || *u.DeviceID == "" {
		return nil, oops.Code("DEVICE_ID_REQUIRED").Wrap(ErrValidation)
	}
	if s.devices == nil {
		return nil, oops.Code("DEVICE_STORE_MISSING").Errorf("device token store not configured")
	}
	deviceID := *u.DeviceID

	existing, err := s.devices.GetDeviceToken(ctx, deviceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("DEVICE_TOKEN_LOOKUP_FAILED").With("device_id", deviceID).Wrap(err)
	}
	now := s.now()
	if existing != nil && !existing.ExpiredAt(now) && existing.UserEmail == u.EmailOrEmpty() {
		s.metrics.Issued("device_token", "reused")
		return existing, nil
	}

	dt := &entity.DeviceToken{
		DeviceID:  deviceID,
		UserEmail: u.EmailOrEmpty(),
		Token:     utilities.NewKSUID(),
		MaxAge:    now.Add(s.cfg.DeviceTokenMaxAge),
	}
	if err := s.devices.PutDeviceToken(ctx, dt); err != nil {
		s.metrics.Issued("device_token", "failed")
		return nil, oops.Code("DEVICE_TOKEN_ISSUE_FAILED").With("device_id", deviceID).Wrap(err)
	}
	outcome := "created"
	if existing != nil {
		outcome = "rotated"
	}
	s.metrics.Issued("device_token", outcome)
	return dt, nil
}

// GetDeviceToken returns the device's token when tok matches it. A mismatch is
// indistinguishable from a missing token; an expired match wraps ErrExpired.
func (s *Service) GetDeviceToken(ctx context.Context, deviceID, tok string) (*entity.DeviceToken, error) {
	if deviceID == "" || tok == "" {
		return nil, oops.Code("DEVICE_TOKEN_REQUIRED").Wrap(ErrValidation)
	}
	if s.devices == nil {
		return nil, oops.Code("DEVICE_STORE_MISSING").Errorf("device token store not configured")
	}
	dt, err := s.devices.GetDeviceToken(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Validated("device_token", "unknown")
		}
		return nil, oops.Code("DEVICE_TOKEN_LOOKUP_FAILED").With("device_id", deviceID).Wrap(err)
	}
	if !ConstantTimeCompare(dt.Token, tok) {
		s.metrics.Validated("device_token", "unknown")
		return nil, oops.Code("DEVICE_TOKEN_UNKNOWN").With("device_id", deviceID).Wrap(ErrNotFound)
	}
	if dt.ExpiredAt(s.now()) {
		s.metrics.Validated("device_token", "expired")
		return nil, oops.Code("DEVICE_TOKEN_EXPIRED").
			With("device_id", deviceID).
			With("max_age", dt.MaxAge).
			Wrap(ErrExpired)
	}
	s.metrics.Validated("device_token", "ok")
	return dt, nil
}
