// Package session holds per-browser web state: the logged-in identity,
// flash messages and in-progress email verifications.
package session

import (
	"encoding/gob"
	"time"

	"recipebox/internal/config"
	"recipebox/internal/models"
	"recipebox/internal/otp"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
)

// CookieName is the session cookie.
const CookieName = "recipebox_session"

const (
	keyUserID       = "user_id"
	keyUsername     = "username"
	keyIsAdmin      = "is_admin"
	keyFlashes      = "flashes"
	keyChallenge    = "otp_challenge"
	keyRegistration = "staged_registration"
	keyPendingEmail = "pending_email"
)

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashError   = "danger"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// Registration is a signup waiting for its email code. Password is
// already hashed.
type Registration struct {
	Username     string
	Email        string
	PasswordHash string
}

// Identity is the logged-in account as recorded in the session.
type Identity struct {
	UserID   uint
	Username string
	IsAdmin  bool
}

func init() {
	gob.Register([]Flash{})
	gob.Register(Registration{})
	gob.Register(otp.Challenge{})
}

// NewStore builds the session store. Sessions live in Redis when a
// client is given and in process memory otherwise.
func NewStore(cfg *config.Config, rdb *redis.Client) *fibersession.Store {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	sc := fibersession.Config{
		Expiration:     ttl,
		KeyLookup:      "cookie:" + CookieName,
		CookieHTTPOnly: true,
		CookieSecure:   cfg.SessionCookieSecure,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	}
	if rdb != nil {
		sc.Storage = NewRedisStorage(rdb, "session:")
	}
	return fibersession.New(sc)
}

// Login records user in a fresh session id.
func Login(sess *fibersession.Session, user *models.User) error {
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(keyUserID, user.ID)
	sess.Set(keyUsername, user.Username)
	sess.Set(keyIsAdmin, user.IsAdmin)
	ClearChallenge(sess)
	sess.Delete(keyRegistration)
	sess.Delete(keyPendingEmail)
	return nil
}

// Logout clears everything and rotates the session id.
func Logout(sess *fibersession.Session) error {
	return sess.Reset()
}

// Current returns the logged-in identity.
func Current(sess *fibersession.Session) (Identity, bool) {
	if sess == nil {
		return Identity{}, false
	}
	id, ok := sess.Get(keyUserID).(uint)
	if !ok || id == 0 {
		return Identity{}, false
	}
	username, _ := sess.Get(keyUsername).(string)
	isAdmin, _ := sess.Get(keyIsAdmin).(bool)
	return Identity{UserID: id, Username: username, IsAdmin: isAdmin}, true
}

// SetUsername refreshes the stored username after a profile change.
func SetUsername(sess *fibersession.Session, username string) {
	sess.Set(keyUsername, username)
}

// AddFlash queues a message for the next page.
func AddFlash(sess *fibersession.Session, kind, message string) {
	flashes, _ := sess.Get(keyFlashes).([]Flash)
	sess.Set(keyFlashes, append(flashes, Flash{Kind: kind, Message: message}))
}

// PopFlashes returns and clears queued messages.
func PopFlashes(sess *fibersession.Session) []Flash {
	if sess == nil {
		return nil
	}
	flashes, _ := sess.Get(keyFlashes).([]Flash)
	if len(flashes) > 0 {
		sess.Delete(keyFlashes)
	}
	return flashes
}

// SetChallenge stores the outstanding verification.
func SetChallenge(sess *fibersession.Session, ch *otp.Challenge) {
	sess.Set(keyChallenge, *ch)
}

// Challenge returns the outstanding verification, if any.
func Challenge(sess *fibersession.Session) *otp.Challenge {
	ch, ok := sess.Get(keyChallenge).(otp.Challenge)
	if !ok {
		return nil
	}
	return &ch
}

// ClearChallenge drops the outstanding verification.
func ClearChallenge(sess *fibersession.Session) {
	sess.Delete(keyChallenge)
}

// StageRegistration keeps a signup until its code is verified.
func StageRegistration(sess *fibersession.Session, reg Registration) {
	sess.Set(keyRegistration, reg)
}

// StagedRegistration returns the signup waiting for verification.
func StagedRegistration(sess *fibersession.Session) (Registration, bool) {
	reg, ok := sess.Get(keyRegistration).(Registration)
	return reg, ok
}

// ClearRegistration drops the staged signup and its challenge.
func ClearRegistration(sess *fibersession.Session) {
	sess.Delete(keyRegistration)
	ClearChallenge(sess)
}

// StagePendingEmail keeps a requested email change until it is verified.
func StagePendingEmail(sess *fibersession.Session, email string) {
	sess.Set(keyPendingEmail, email)
}

// PendingEmail returns the requested new address.
func PendingEmail(sess *fibersession.Session) (string, bool) {
	email, ok := sess.Get(keyPendingEmail).(string)
	return email, ok && email != ""
}

// ClearPendingEmail drops the requested change and its challenge.
func ClearPendingEmail(sess *fibersession.Session) {
	sess.Delete(keyPendingEmail)
	ClearChallenge(sess)
}
