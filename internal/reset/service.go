// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package reset implements password reset by emailed token.
package reset

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/credential"
	"github.com/holomush/authkit/internal/mail"
	"github.com/holomush/authkit/internal/user"
	"github.com/holomush/authkit/pkg/errutil"
)

// DefaultTTL is how long a reset token stays redeemable.
const DefaultTTL = time.Hour

// Service handles password reset operations.
type Service struct {
	users       *user.Service
	credentials *credential.Service
	mailer      mail.Mailer
	ttl         time.Duration
	logger      *slog.Logger
}

// NewService creates a reset Service. A non-positive ttl uses DefaultTTL.
func NewService(users *user.Service, credentials *credential.Service, mailer mail.Mailer, ttl time.Duration) (*Service, error) {
	return NewServiceWithLogger(users, credentials, mailer, ttl, slog.Default())
}

// NewServiceWithLogger creates a reset Service with a custom logger.
func NewServiceWithLogger(
	users *user.Service,
	credentials *credential.Service,
	mailer mail.Mailer,
	ttl time.Duration,
	logger *slog.Logger,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("user service is required")
	}
	if credentials == nil {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("credential service is required")
	}
	if mailer == nil {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("mailer is required")
	}
	if logger == nil {
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("logger is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		users:       users,
		credentials: credentials,
		mailer:      mailer,
		ttl:         ttl,
		logger:      logger,
	}, nil
}

// RequestReset issues a reset token for the user with email and mails it.
// An unknown email succeeds without sending anything so callers cannot probe
// for accounts.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	if email == "" {
		return auth.Unprocessable("RESET_EMAIL_REQUIRED", "email is required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	c, err := s.credentials.Issue(ctx, credential.KindPasswordReset, u, user.TypeName, s.ttl)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue reset credential").
			With("user_id", u.ID.String()).
			Wrap(err)
	}

	msg, err := mail.ResetPassword(u.Email, mail.ResetData{
		Name:      displayName(u),
		Token:     c.Secret,
		ExpiresAt: c.ExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return err //nolint:wrapcheck // render returns a coded error
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return oops.Code("RESET_MAIL_FAILED").
			With("user_id", u.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "user_id", u.ID.String())
	return nil
}

// ValidateToken returns the user a live reset token was issued to.
func (s *Service) ValidateToken(ctx context.Context, token string) (*user.User, *credential.Credential, error) {
	c, err := s.credentials.Redeem(ctx, credential.KindPasswordReset, token)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // redeem returns kind-tagged errors
	}

	owner, err := s.credentials.Owner(ctx, c)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // owner returns kind-tagged errors
	}
	u, ok := owner.(*user.User)
	if !ok {
		return nil, nil, auth.InternalWith("RESET_UNEXPECTED_OWNER",
			map[string]any{"credential_id": c.ID.String()},
			"reset credential owned by %T", owner)
	}
	return u, c, nil
}

// ResetPassword sets a new password for the owner of token and invalidates
// every reset token issued to that user.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if password == "" {
		return auth.Unprocessable("RESET_PASSWORD_REQUIRED", "password is required")
	}

	u, c, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	if _, err := s.users.Update(ctx, u, auth.Attributes{s.users.SecretField(): password}); err != nil {
		return err //nolint:wrapcheck // user service returns kind-tagged errors
	}

	// The password is already changed; a failed cleanup leaves tokens that
	// expire on their own.
	if err := s.credentials.Consume(ctx, c); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to consume reset credentials", err)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", u.ID.String())
	return nil
}

func displayName(u *user.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
