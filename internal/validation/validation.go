// Package validation checks account and recipe input before it reaches
// the database.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Account field limits. bcrypt ignores input past 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxEmailLength    = 254
	MinRating         = 1
	MaxRating         = 5
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]*[a-zA-Z0-9])?$`)
	domainPattern   = regexp.MustCompile(`^([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}$`)
)

func ValidatePassword(password string) error {
	switch {
	case strings.TrimSpace(password) == "":
		return errors.New("password cannot be blank")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	case len(password) > MaxPasswordBytes:
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordBytes)
	}
	return nil
}

// ValidateUsername accepts letters, digits, underscores and hyphens, with
// a letter or digit at both ends.
func ValidateUsername(username string) error {
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("username must be %d to %d characters long", MinUsernameLength, MaxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username may contain letters, numbers, underscores and hyphens, and must start and end with a letter or number")
	}
	return nil
}

// ValidateEmail accepts a bare address (no display name) with a dotted
// domain.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errors.New("invalid email format")
	}
	_, domain, _ := strings.Cut(email, "@")
	if !domainPattern.MatchString(domain) {
		return errors.New("invalid email format")
	}
	return nil
}

func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("Rating must be between %d and %d", MinRating, MaxRating)
	}
	return nil
}

// Required returns an error naming the first blank field. Fields are given
// as name/value pairs.
func Required(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return fmt.Errorf("%s is required", fields[i])
		}
	}
	return nil
}
