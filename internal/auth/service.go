// Package auth implements account creation, credential verification and the
// lifecycle of every ephemeral credential a user can hold: access and refresh
// tokens, verification and password-reset codes and tokens, and device tokens.
//
// A user owns zero or one live credential of each one-time kind. Rotation
// deletes the old row and inserts the new one inside a single unit of work on
// the Store, so a failure between the two is rolled back and reported.
package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/otp"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/token"
)

// Config holds lifetimes and message templates.
type Config struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	VerificationTokenTTL  time.Duration
	PasswordResetTokenTTL time.Duration
	// CodeLength is used when a caller asks for a code without a length.
	CodeLength int
	// CodeTTL bounds verification and reset codes; zero means codes never expire.
	CodeTTL           time.Duration
	DeviceTokenMaxAge time.Duration

	EmailVerificationTemplate string
	PasswordResetTemplate     string
}

// DefaultConfig returns the lifetimes the service was designed around.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:            15 * time.Minute,
		RefreshTokenTTL:           2880 * time.Minute,
		VerificationTokenTTL:      24 * time.Hour,
		PasswordResetTokenTTL:     1440 * time.Minute,
		CodeLength:                otp.DefaultLength,
		CodeTTL:                   30 * time.Minute,
		DeviceTokenMaxAge:         30 * 24 * time.Hour,
		EmailVerificationTemplate: "email_verification.html",
		PasswordResetTemplate:     "password_reset.html",
	}
}

// Deps are the collaborators of a Service. Store and Codec are required.
type Deps struct {
	Store    Store
	Devices  DeviceTokenStore
	Codec    *token.Codec
	Hasher   PasswordHasher
	Mailer   notify.Mailer
	Notifier notify.Notifier
	Logger   *zap.SugaredLogger
	Metrics  *metrics.Metrics
	// DialCodes validates phone country codes; nil accepts "+" followed by 1-4 digits.
	DialCodes func(code string) bool
	Now       func() time.Time
}

// Service orchestrates account and credential lifecycle flows.
type Service struct {
	cfg       Config
	store     Store
	devices   DeviceTokenStore
	codec     *token.Codec
	hasher    PasswordHasher
	mailer    notify.Mailer
	notifier  notify.Notifier
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
	dialCodes func(string) bool
	now       func() time.Time
}

var dialCodePattern = regexp.MustCompile(`^\+?[1-9][0-9]{0,3}$`)

// NewService validates deps and fills defaults for the optional ones.
func NewService(cfg Config, d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("store is required")
	}
	if d.Codec == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token codec is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 ||
		cfg.VerificationTokenTTL <= 0 || cfg.PasswordResetTokenTTL <= 0 || cfg.DeviceTokenMaxAge <= 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token lifetimes must be positive")
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = otp.DefaultLength
	}
	if cfg.CodeLength < otp.MinLength || cfg.CodeLength > otp.MaxLength {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("code_length", cfg.CodeLength).Errorf("code length out of range")
	}

	s := &Service{
		cfg:       cfg,
		store:     d.Store,
		devices:   d.Devices,
		codec:     d.Codec,
		hasher:    d.Hasher,
		mailer:    d.Mailer,
		notifier:  d.Notifier,
		logger:    d.Logger,
		metrics:   d.Metrics,
		dialCodes: d.DialCodes,
		now:       d.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.hasher == nil {
		s.hasher = BcryptHasher{Cost: 12}
	}
	if s.mailer == nil {
		s.mailer = notify.LogMailer{Logger: s.logger}
	}
	if s.notifier == nil {
		s.notifier = notify.LogNotifier{Logger: s.logger}
	}
	if s.dialCodes == nil {
		s.dialCodes = dialCodePattern.MatchString
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) sendEmail(ctx context.Context, msg notify.Email) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warnw("email delivery failed", "template", msg.Template, "recipients", msg.Recipients, "err", err)
	}
}

func (s *Service) notifyAsync(ctx context.Context, text string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, text); err != nil {
			s.logger.Warnw("notification failed", "err", err)
		}
	}()
}
