package service

import (
	"context"
	"errors"
	"log/slog"

	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/observability"
	"recipebox/internal/otp"
)

// VerificationService emails one-time codes and checks them.
type VerificationService struct {
	issuer *otp.Issuer
	mailer notifications.Mailer
}

// NewVerificationService returns a VerificationService.
func NewVerificationService(issuer *otp.Issuer, mailer notifications.Mailer) *VerificationService {
	return &VerificationService{issuer: issuer, mailer: mailer}
}

// Send issues a code for email and delivers it synchronously. The
// challenge is returned only when the mail was accepted.
func (s *VerificationService) Send(ctx context.Context, purpose otp.Purpose, email string) (*otp.Challenge, error) {
	code, ch, err := s.issuer.Issue(purpose, email)
	if err != nil {
		return nil, err
	}

	msg := notifications.OTPMessage(string(purpose), email, code, s.issuer.TTL())
	if err := s.mailer.Send(ctx, msg); err != nil {
		observability.OTPMails.WithLabelValues(string(purpose), "failed").Inc()
		middleware.Logger.ErrorContext(ctx, "failed to send verification mail",
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()),
		)
		return nil, &models.AppError{
			Code:    models.CodeInternal,
			Message: "We could not send the verification email. Please try again.",
			Err:     err,
		}
	}
	observability.OTPMails.WithLabelValues(string(purpose), "sent").Inc()
	return ch, nil
}

// Check verifies code against ch, counting the attempt on ch.
func (s *VerificationService) Check(ch *otp.Challenge, purpose otp.Purpose, code string) error {
	err := s.issuer.Verify(ch, purpose, code)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, otp.ErrExpired):
		result = "expired"
	case errors.Is(err, otp.ErrTooManyAttempts):
		result = "locked"
	default:
		result = "mismatch"
	}
	observability.OTPVerifications.WithLabelValues(string(purpose), result).Inc()
	return err
}
