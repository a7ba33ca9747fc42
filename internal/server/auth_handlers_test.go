package server

import (
	"net/url"
	"testing"

	"recipebox/internal/models"
	"recipebox/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signupForm(username, email string) url.Values {
	return url.Values{
		"username": {username},
		"email":    {email},
		"password": {"password123"},
	}
}

func wrongCode(code string) string {
	last := byte('0')
	if code[len(code)-1] == '0' {
		last = '1'
	}
	return code[:len(code)-1] + string(last)
}

func TestRegister_WithOTP(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	resp := b.postForm("/register", signupForm("alice", "alice@example.com"))
	assertRedirect(t, resp, "/verify_otp")
	assert.Contains(t, b.getBody("/verify_otp"), "alice@example.com")

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", "alice@example.com").Count(&count).Error)
	assert.Zero(t, count, "account must not exist before the code is confirmed")

	code := env.mail.lastCode(t)

	resp = b.postForm("/verify_otp", url.Values{"otp": {wrongCode(code)}})
	assertRedirect(t, resp, "/verify_otp")
	assert.Contains(t, b.getBody("/verify_otp"), "Invalid OTP")

	resp = b.postForm("/verify_otp", url.Values{"otp": {code}})
	assertRedirect(t, resp, "/login")
	assert.Contains(t, b.getBody("/login"), "Registration successful")

	var user models.User
	require.NoError(t, env.db.Where("email = ?", "alice@example.com").First(&user).Error)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.IsApproved)
	assert.False(t, user.IsAdmin)

	// The staged signup is gone once used.
	resp = b.get("/verify_otp")
	assertRedirect(t, resp, "/register")
}

func TestRegister_ResendOTP(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	resp := b.postForm("/register", signupForm("bruno", "bruno@example.com"))
	assertRedirect(t, resp, "/verify_otp")
	first := env.mail.lastCode(t)

	resp = b.postForm("/resend_otp", url.Values{"purpose": {"signup"}})
	assertRedirect(t, resp, "/verify_otp")
	second := env.mail.lastCode(t)
	assert.Len(t, env.mail.sent, 2)

	if first != second {
		resp = b.postForm("/verify_otp", url.Values{"otp": {first}})
		assertRedirect(t, resp, "/verify_otp")
	}
	resp = b.postForm("/verify_otp", url.Values{"otp": {second}})
	assertRedirect(t, resp, "/login")
}

func TestRegister_WithoutStagedSignup(t *testing.T) {
	env := newTestEnv(t)
	b := env.browser()

	assertRedirect(t, b.postForm("/verify_otp", url.Values{"otp": {"123456"}}), "/register")
	assertRedirect(t, b.postForm("/resend_otp", nil), "/register")
}

func TestRegister_Direct(t *testing.T) {
	env := newTestEnv(t, withFlags("signup_otp=off"))
	b := env.browser()

	resp := b.postForm("/signup", signupForm("carla", "carla@example.com"))
	assertRedirect(t, resp, "/login")
	assert.Empty(t, env.mail.sent)

	var user models.User
	require.NoError(t, env.db.Where("email = ?", "carla@example.com").First(&user).Error)
	assert.False(t, user.IsApproved)
}

func TestRegister_Failures(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, testutil.WithEmail("taken@example.com"))

	t.Run("taken email goes to login", func(t *testing.T) {
		b := env.browser()
		resp := b.postForm("/register", signupForm("newcomer", "taken@example.com"))
		assertRedirect(t, resp, "/login")
		assert.Contains(t, b.getBody("/login"), "Email already exists")
	})

	t.Run("invalid input re-renders the form", func(t *testing.T) {
		b := env.browser()
		resp := b.postForm("/register", signupForm("x", "not-an-email"))
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "username must be 3 to 30 characters long")
	})

	t.Run("mail failure keeps the visitor on the form", func(t *testing.T) {
		env.mail.fail = true
		defer func() { env.mail.fail = false }()

		b := env.browser()
		resp := b.postForm("/register", signupForm("dana", "dana@example.com"))
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "could not send the verification email")
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("unapproved account is turned away without a session", func(t *testing.T) {
		pending := testutil.CreateUser(t, env.db)
		b := env.browser()

		resp := b.postForm("/login", url.Values{
			"email":    {pending.Email},
			"password": {testutil.DefaultPassword},
		})
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "awaiting admin approval")

		assertRedirect(t, b.get("/user_dashboard"), "/login")
	})

	t.Run("wrong password", func(t *testing.T) {
		user := testutil.CreateUser(t, env.db, testutil.Approved())
		b := env.browser()

		resp := b.postForm("/login", url.Values{
			"email":    {user.Email},
			"password": {"not-the-password"},
		})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "Invalid email or password")
	})

	t.Run("approved member lands on the dashboard", func(t *testing.T) {
		user := testutil.CreateUser(t, env.db, testutil.Approved())
		b := env.browser()

		b.login(user, "/user_dashboard")
		body := b.getBody("/user_dashboard")
		assert.Contains(t, body, "Welcome back, "+user.Username)
		assert.Contains(t, body, "Welcome, "+user.Username)

		assertRedirect(t, b.get("/login"), "/user_dashboard")
	})

	t.Run("admin lands on the admin dashboard", func(t *testing.T) {
		admin := testutil.CreateUser(t, env.db, testutil.Admin())
		b := env.browser()

		b.login(admin, "/admin_dashboard")
		assertRedirect(t, b.get("/user_dashboard"), "/admin_dashboard")
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, testutil.Approved())

	for _, path := range []string{"/logout", "/logoutuser", "/logoutadmin"} {
		t.Run(path, func(t *testing.T) {
			b := env.browser()
			b.login(user, "/user_dashboard")

			assertRedirect(t, b.get(path), "/login")
			assert.Contains(t, b.getBody("/login"), "You have been logged out.")
			assertRedirect(t, b.get("/user_dashboard"), "/login")
		})
	}
}

func TestDeletedAccountEndsSession(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, testutil.Approved())
	b := env.browser()
	b.login(user, "/user_dashboard")

	require.NoError(t, env.db.Delete(&models.User{}, user.ID).Error)

	assertRedirect(t, b.get("/user_dashboard"), "/login")
	assert.Contains(t, b.getBody("/login"), "Your account no longer exists.")
}
