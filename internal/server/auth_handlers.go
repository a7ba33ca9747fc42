package server

import (
	"errors"
	"log/slog"

	"recipebox/internal/featureflags"
	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/otp"
	"recipebox/internal/service"
	"recipebox/internal/session"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
)

const (
	msgRegistered      = "Registration successful! Please wait for admin approval."
	msgSignupExpired   = "Your signup session has expired. Please register again."
	msgMailFailed      = "We could not send the verification email. Please try again."
	msgLoggedOut       = "You have been logged out."
	msgAlreadyLoggedIn = "You are already logged in."
)

// dashboardFor returns the landing page of a logged-in account.
func dashboardFor(id *session.Identity) string {
	if id != nil && id.IsAdmin {
		return "/admin_dashboard"
	}
	return "/user_dashboard"
}

// RegisterPage renders the signup form.
func (s *Server) RegisterPage(c *fiber.Ctx) error {
	if id := identity(c); id != nil {
		return redirectWithFlash(c, dashboardFor(id), session.FlashInfo, msgAlreadyLoggedIn)
	}
	return s.render(c, "register", fiber.Map{"Form": service.RegisterInput{}})
}

// Register creates an unapproved account. With signup_otp on, the account
// is only staged in the session until the emailed code is confirmed.
func (s *Server) Register(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sess := currentSession(c)
	in := service.RegisterInput{
		Username: c.FormValue("username"),
		Email:    c.FormValue("email"),
		Password: c.FormValue("password"),
	}

	if !s.featureFlags.Enabled(featureflags.SignupOTP, 0) {
		user, err := s.accounts.Register(ctx, in)
		if err != nil {
			return s.registerFailed(c, in, err)
		}
		s.announceSignup(c, user)
		return redirectWithFlash(c, "/login", session.FlashSuccess, msgRegistered)
	}

	staged, err := s.accounts.StageRegistration(ctx, in)
	if err != nil {
		return s.registerFailed(c, in, err)
	}
	ch, err := s.verification.Send(ctx, otp.PurposeSignup, staged.Email)
	if err != nil {
		flash(c, session.FlashError, msgMailFailed)
		return s.renderRegister(c, fiber.StatusServiceUnavailable, in)
	}

	session.StageRegistration(sess, session.Registration{
		Username:     staged.Username,
		Email:        staged.Email,
		PasswordHash: staged.Password,
	})
	session.SetChallenge(sess, ch)
	return redirectWithFlash(c, "/verify_otp", session.FlashInfo,
		"We sent a verification code to "+staged.Email+".")
}

// registerFailed shows a signup failure. A taken email sends the visitor to
// the login page; other problems re-render the form.
func (s *Server) registerFailed(c *fiber.Ctx, in service.RegisterInput, err error) error {
	var appErr *models.AppError
	if !asAppError(err, &appErr) {
		return err
	}
	if errors.Is(err, service.ErrEmailTaken) {
		return redirectWithFlash(c, "/login", session.FlashWarning, appErr.Message)
	}
	flash(c, session.FlashError, appErr.Message)
	return s.renderRegister(c, models.StatusFor(err), in)
}

func (s *Server) renderRegister(c *fiber.Ctx, status int, in service.RegisterInput) error {
	in.Password = ""
	c.Status(status)
	return s.render(c, "register", fiber.Map{"Form": in})
}

// announceSignup tells administrators a new account is waiting.
func (s *Server) announceSignup(c *fiber.Ctx, user *models.User) {
	event := notifications.NewEvent(notifications.EventQueueChanged,
		"New signup awaiting approval: "+user.Username).WithUser(user.ID)
	if err := s.notifier.PublishAdmins(c.UserContext(), event); err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "Failed to announce signup", slog.String("error", err.Error()))
	}
}

// VerifyOTPPage asks for the signup code.
func (s *Server) VerifyOTPPage(c *fiber.Ctx) error {
	reg, ok := session.StagedRegistration(currentSession(c))
	if !ok {
		return redirectWithFlash(c, "/register", session.FlashWarning, msgSignupExpired)
	}
	return s.render(c, "verify_otp", fiber.Map{
		"Email":      reg.Email,
		"TTLMinutes": s.config.OTPTTLMinutes,
	})
}

// VerifyOTP checks the signup code and creates the staged account.
func (s *Server) VerifyOTP(c *fiber.Ctx) error {
	sess := currentSession(c)
	reg, ok := session.StagedRegistration(sess)
	if !ok {
		return redirectWithFlash(c, "/register", session.FlashWarning, msgSignupExpired)
	}
	if redirect, err := s.checkCode(c, sess, otp.PurposeSignup, "/verify_otp"); redirect {
		return err
	}

	user, err := s.accounts.CompleteRegistration(c.UserContext(), &models.User{
		Username: reg.Username,
		Email:    reg.Email,
		Password: reg.PasswordHash,
	})
	session.ClearRegistration(sess)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			return flashFailure(c, err, "/login")
		}
		return flashFailure(c, err, "/register")
	}
	s.announceSignup(c, user)
	return redirectWithFlash(c, "/login", session.FlashSuccess, msgRegistered)
}

// checkCode verifies the posted code against the session challenge. When
// it returns true the response is already decided and err is what the
// handler should return.
func (s *Server) checkCode(c *fiber.Ctx, sess *fibersession.Session, purpose otp.Purpose, retry string) (bool, error) {
	ch := session.Challenge(sess)
	if ch == nil {
		return true, redirectWithFlash(c, retry, session.FlashWarning, otp.ErrNoChallenge.Message)
	}

	err := s.verification.Check(ch, purpose, c.FormValue("otp"))
	if err == nil {
		session.ClearChallenge(sess)
		return false, nil
	}

	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return true, err
	}
	if errors.Is(err, otp.ErrExpired) || errors.Is(err, otp.ErrTooManyAttempts) {
		session.ClearChallenge(sess)
	} else {
		// Keep the attempt count.
		session.SetChallenge(sess, ch)
	}
	return true, redirectWithFlash(c, retry, session.FlashError, appErr.Message)
}

// ResendOTP issues a fresh code for the signup or email change in progress.
func (s *Server) ResendOTP(c *fiber.Ctx) error {
	sess := currentSession(c)

	var (
		purpose otp.Purpose
		email   string
		next    string
	)
	switch otp.Purpose(c.FormValue("purpose")) {
	case otp.PurposeEmailChange:
		pending, ok := session.PendingEmail(sess)
		if identity(c) == nil || !ok {
			return redirectWithFlash(c, "/profile", session.FlashWarning, otp.ErrNoChallenge.Message)
		}
		purpose, email, next = otp.PurposeEmailChange, pending, "/verify_email_otp"
	default:
		reg, ok := session.StagedRegistration(sess)
		if !ok {
			return redirectWithFlash(c, "/register", session.FlashWarning, msgSignupExpired)
		}
		purpose, email, next = otp.PurposeSignup, reg.Email, "/verify_otp"
	}

	ch, err := s.verification.Send(c.UserContext(), purpose, email)
	if err != nil {
		return redirectWithFlash(c, next, session.FlashError, msgMailFailed)
	}
	session.SetChallenge(sess, ch)
	return redirectWithFlash(c, next, session.FlashInfo, "A new code was sent to "+email+".")
}

// LoginPage renders the login form.
func (s *Server) LoginPage(c *fiber.Ctx) error {
	if id := identity(c); id != nil {
		return c.Redirect(dashboardFor(id))
	}
	return s.render(c, "login", fiber.Map{"Email": ""})
}

// Login checks credentials and the approval gate before anything is
// written to the session.
func (s *Server) Login(c *fiber.Ctx) error {
	email := c.FormValue("email")
	user, err := s.accounts.Authenticate(c.UserContext(), email, c.FormValue("password"))
	if err != nil {
		if models.HasCode(err, models.CodeUnauthorized) || models.HasCode(err, models.CodePendingApproval) {
			var appErr *models.AppError
			errors.As(err, &appErr)
			flash(c, session.FlashError, appErr.Message)
			c.Status(models.StatusFor(err))
			return s.render(c, "login", fiber.Map{"Email": email})
		}
		return err
	}

	sess := currentSession(c)
	if err := session.Login(sess, user); err != nil {
		return err
	}
	session.AddFlash(sess, session.FlashSuccess, "Welcome back, "+user.Username+"!")
	if user.IsAdmin {
		return c.Redirect("/admin_dashboard")
	}
	return c.Redirect("/user_dashboard")
}

// Logout clears the session. /logoutuser and /logoutadmin are aliases.
func (s *Server) Logout(c *fiber.Ctx) error {
	sess := currentSession(c)
	if err := session.Logout(sess); err != nil {
		return err
	}
	session.AddFlash(sess, session.FlashInfo, msgLoggedOut)
	return c.Redirect("/login")
}
