package auth

import (
	"context"
	"strings"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/notify"
)

func (s *Service) registeredUser(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.IsDeleted {
		return nil, oops.Code("EMAIL_NOT_REGISTERED").With("email", email).Wrap(ErrNotFound)
	}
	return u, nil
}

// SendPasswordResetCode rotates the password reset code of the account
// registered under email and mails it. The code is returned to the caller.
func (s *Service) SendPasswordResetCode(ctx context.Context, email string, length int) (string, error) {
	u, err := s.registeredUser(ctx, email)
	if err != nil {
		return "", err
	}
	code, err := s.IssuePasswordResetCode(ctx, u.ID, length)
	if err != nil {
		return "", err
	}
	s.sendEmail(ctx, notify.Email{
		Recipients: []string{u.EmailOrEmpty()},
		Template:   s.cfg.PasswordResetTemplate,
		Title:      "Password Reset",
		Data:       map[string]string{"code": code},
	})
	return code, nil
}

// ResendVerificationCode rotates the verification code and mails it.
func (s *Service) ResendVerificationCode(ctx context.Context, email string, length int) (string, error) {
	u, err := s.registeredUser(ctx, email)
	if err != nil {
		return "", err
	}
	code, err := s.IssueVerificationCode(ctx, u.ID, length)
	if err != nil {
		return "", err
	}
	s.sendEmail(ctx, notify.Email{
		Recipients: []string{u.EmailOrEmpty()},
		Template:   s.cfg.EmailVerificationTemplate,
		Title:      "Account Verify",
		Data:       map[string]string{"code": code},
	})
	return code, nil
}

// SendPasswordResetLink mails a link carrying the user's password reset token.
func (s *Service) SendPasswordResetLink(ctx context.Context, email, redirectURL string) (string, error) {
	u, err := s.registeredUser(ctx, email)
	if err != nil {
		return "", err
	}
	tok, err := s.IssuePasswordResetToken(ctx, u.ID)
	if err != nil {
		return "", err
	}
	s.sendEmail(ctx, notify.Email{
		Recipients: []string{u.EmailOrEmpty()},
		Template:   s.cfg.PasswordResetTemplate,
		Title:      "Change Your Password",
		Data:       map[string]string{"path": tokenLink(redirectURL, tok)},
	})
	return tok, nil
}

// ResendVerificationLink mails a link carrying the user's verification token.
func (s *Service) ResendVerificationLink(ctx context.Context, email, redirectURL string) (string, error) {
	u, err := s.registeredUser(ctx, email)
	if err != nil {
		return "", err
	}
	tok, err := s.IssueVerificationToken(ctx, u.ID)
	if err != nil {
		return "", err
	}
	s.sendEmail(ctx, notify.Email{
		Recipients: []string{u.EmailOrEmpty()},
		Template:   s.cfg.EmailVerificationTemplate,
		Title:      "Verify Your Account",
		Data:       map[string]string{"path": tokenLink(redirectURL, tok)},
	})
	return tok, nil
}

func tokenLink(redirectURL, tok string) string {
	return strings.TrimRight(redirectURL, "/") + "/?token=" + tok
}
