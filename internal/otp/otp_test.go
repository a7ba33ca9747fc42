package otp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(now *time.Time) *Issuer {
	i := NewIssuer(5*time.Minute, 3)
	i.now = func() time.Time { return *now }
	return i
}

func TestIssue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIssuer(&now)

	code, ch, err := i.Issue(PurposeSignup, "cook@example.com")
	require.NoError(t, err)
	assert.Len(t, code, CodeLength)
	assert.Regexp(t, `^[0-9]{6}$`, code)
	assert.Equal(t, "cook@example.com", ch.Email)
	assert.Equal(t, now.Add(5*time.Minute), ch.ExpiresAt)
	assert.NotContains(t, ch.CodeHash, code)
	assert.Zero(t, ch.Attempts)
}

func TestFormatCode_PadsLeadingZeros(t *testing.T) {
	assert.Equal(t, "000000", formatCode(0))
	assert.Equal(t, "000042", formatCode(42))
	assert.Equal(t, "999999", formatCode(999999))
}

func TestVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIssuer(&now)

	t.Run("correct code", func(t *testing.T) {
		code, ch, err := i.Issue(PurposeSignup, "a@example.com")
		require.NoError(t, err)
		assert.NoError(t, i.Verify(ch, PurposeSignup, " "+code+" "))
	})

	t.Run("wrong code counts attempts", func(t *testing.T) {
		code, ch, err := i.Issue(PurposeSignup, "a@example.com")
		require.NoError(t, err)
		wrong := "999999"
		if code == wrong {
			wrong = "111111"
		}

		for range 3 {
			assert.True(t, errors.Is(i.Verify(ch, PurposeSignup, wrong), ErrMismatch))
		}
		assert.Equal(t, 3, ch.Attempts)
		assert.True(t, errors.Is(i.Verify(ch, PurposeSignup, code), ErrTooManyAttempts))
	})

	t.Run("expired", func(t *testing.T) {
		code, ch, err := i.Issue(PurposeEmailChange, "a@example.com")
		require.NoError(t, err)
		later := now.Add(5 * time.Minute)
		expired := newTestIssuer(&later)
		assert.True(t, errors.Is(expired.Verify(ch, PurposeEmailChange, code), ErrExpired))
	})

	t.Run("wrong purpose", func(t *testing.T) {
		code, ch, err := i.Issue(PurposeEmailChange, "a@example.com")
		require.NoError(t, err)
		assert.True(t, errors.Is(i.Verify(ch, PurposeSignup, code), ErrWrongPurpose))
	})

	t.Run("no challenge", func(t *testing.T) {
		assert.True(t, errors.Is(i.Verify(nil, PurposeSignup, "123456"), ErrNoChallenge))
	})
}
