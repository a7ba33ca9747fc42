package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/otp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mailerStub struct {
	mu   sync.Mutex
	sent []notifications.Message
	err  error
}

func (m *mailerStub) Send(_ context.Context, msg notifications.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var otpInBody = regexp.MustCompile(`Your OTP is: (\d{6})`)

func sentCode(t *testing.T, m *mailerStub) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	match := otpInBody.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	require.Len(t, match, 2, "mail body should carry the code")
	return match[1]
}

func TestVerificationService_SendAndCheck(t *testing.T) {
	t.Parallel()

	mailer := &mailerStub{}
	svc := NewVerificationService(otp.NewIssuer(5*time.Minute, 5), mailer)

	ch, err := svc.Send(context.Background(), otp.PurposeSignup, "tom@example.com")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "tom@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Body, "5 minutes")

	code := sentCode(t, mailer)
	assert.NotEqual(t, code, ch.CodeHash, "only the hash is kept")

	require.NoError(t, svc.Check(ch, otp.PurposeSignup, code))
}

func TestVerificationService_CheckFailures(t *testing.T) {
	t.Parallel()

	mailer := &mailerStub{}
	svc := NewVerificationService(otp.NewIssuer(5*time.Minute, 2), mailer)

	ch, err := svc.Send(context.Background(), otp.PurposeEmailChange, "new@example.com")
	require.NoError(t, err)
	code := sentCode(t, mailer)

	assert.ErrorIs(t, svc.Check(ch, otp.PurposeSignup, code), otp.ErrWrongPurpose)
	assert.ErrorIs(t, svc.Check(nil, otp.PurposeEmailChange, code), otp.ErrNoChallenge)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, svc.Check(ch, otp.PurposeEmailChange, wrong), otp.ErrMismatch)
	assert.ErrorIs(t, svc.Check(ch, otp.PurposeEmailChange, wrong), otp.ErrMismatch)
	assert.ErrorIs(t, svc.Check(ch, otp.PurposeEmailChange, code), otp.ErrTooManyAttempts,
		"the right code is refused once attempts are used up")
}

func TestVerificationService_SendFailure(t *testing.T) {
	t.Parallel()

	svc := NewVerificationService(otp.NewIssuer(5*time.Minute, 5), &mailerStub{err: errors.New("relay down")})

	ch, err := svc.Send(context.Background(), otp.PurposeSignup, "tom@example.com")
	assert.Nil(t, ch)
	assertAppErrorCode(t, err, models.CodeInternal)
	assert.Contains(t, err.Error(), "could not send")
}
