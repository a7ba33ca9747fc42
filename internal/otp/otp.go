// Package otp issues and verifies one-time email verification codes.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"recipebox/internal/models"
)

// Purpose names the flow a challenge belongs to.
type Purpose string

const (
	PurposeSignup      Purpose = "signup"
	PurposeEmailChange Purpose = "email_change"
)

// CodeLength is the number of digits in a code.
const CodeLength = 6

var (
	ErrNoChallenge     = models.NewValidationError("No verification is in progress. Please start again.")
	ErrWrongPurpose    = models.NewValidationError("This code belongs to a different verification.")
	ErrExpired         = models.NewValidationError("The verification code has expired. Please request a new one.")
	ErrTooManyAttempts = models.NewValidationError("Too many incorrect attempts. Please request a new code.")
	ErrMismatch        = models.NewValidationError("Invalid OTP. Please try again.")
)

// Challenge is the server-side state of an outstanding code. Only the hash
// of the code is kept.
type Challenge struct {
	Purpose   Purpose   `json:"purpose"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Issuer creates and checks challenges.
type Issuer struct {
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewIssuer returns an Issuer whose codes expire after ttl and allow
// maxAttempts wrong guesses.
func NewIssuer(ttl time.Duration, maxAttempts int) *Issuer {
	return &Issuer{
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// TTL reports how long issued codes stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue generates a fresh code for email. The plaintext code is returned
// for delivery and never stored.
func (i *Issuer) Issue(purpose Purpose, email string) (string, *Challenge, error) {
	code, err := i.generate()
	if err != nil {
		return "", nil, models.NewInternalError(fmt.Errorf("generate otp: %w", err))
	}
	return code, &Challenge{
		Purpose:   purpose,
		Email:     email,
		CodeHash:  hashCode(code),
		ExpiresAt: i.now().Add(i.ttl),
	}, nil
}

// Verify checks code against ch and counts the attempt on ch. Callers
// must persist ch after a failed attempt.
func (i *Issuer) Verify(ch *Challenge, purpose Purpose, code string) error {
	if ch == nil {
		return ErrNoChallenge
	}
	if ch.Purpose != purpose {
		return ErrWrongPurpose
	}
	if ch.Attempts >= i.maxAttempts {
		return ErrTooManyAttempts
	}
	if !i.now().Before(ch.ExpiresAt) {
		return ErrExpired
	}

	ch.Attempts++
	got := hashCode(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(got), []byte(ch.CodeHash)) != 1 {
		return ErrMismatch
	}
	return nil
}

func (i *Issuer) generate() (string, error) {
	limit := big.NewInt(1)
	for range CodeLength {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return formatCode(n.Int64()), nil
}

func formatCode(n int64) string {
	return fmt.Sprintf("%0*d", CodeLength, n)
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
