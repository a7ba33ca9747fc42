package server

import (
	"log/slog"

	"recipebox/internal/featureflags"
	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/otp"
	"recipebox/internal/service"
	"recipebox/internal/session"

	"github.com/gofiber/fiber/v2"
)

const dashboardNotices = 10

// Home renders the landing page with a fresh random sample of recipes.
func (s *Server) Home(c *fiber.Ctx) error {
	page, err := s.home.HomePage(c.UserContext())
	if err != nil {
		return err
	}
	return s.render(c, "home", fiber.Map{"Home": page})
}

// UserDashboard lists the member's own recipes with their moderation state.
func (s *Server) UserDashboard(c *fiber.Ctx) error {
	user := account(c)
	if user.IsAdmin {
		return c.Redirect("/admin_dashboard")
	}
	ctx := c.UserContext()

	recipes, err := s.recipes.ListMine(ctx, user.ID)
	if err != nil {
		return err
	}
	notices, err := s.notifier.Inbox(ctx, user.ID, dashboardNotices)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to read notification inbox",
			slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		notices = nil
	}
	return s.render(c, "user_dashboard", fiber.Map{
		"Recipes": recipes,
		"Notices": notices,
	})
}

// ProfilePage shows the account form.
func (s *Server) ProfilePage(c *fiber.Ctx) error {
	user := account(c)
	pending, _ := session.PendingEmail(currentSession(c))
	return s.render(c, "profile", fiber.Map{
		"Account":      user,
		"PendingEmail": pending,
		"EmailOTP":     s.featureFlags.Enabled(featureflags.EmailChangeOTP, user.ID),
	})
}

// UpdateProfile saves a username change and starts an email change. With
// email_change_otp on, the new address is held in the session until the
// code sent to it is confirmed.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sess := currentSession(c)
	user := account(c)

	if username := c.FormValue("username"); username != "" && username != user.Username {
		updated, err := s.accounts.UpdateProfile(ctx, service.ProfileInput{UserID: user.ID, Username: username})
		if err != nil {
			return flashFailure(c, err, "/profile")
		}
		session.SetUsername(sess, updated.Username)
		user = updated
		flash(c, session.FlashSuccess, "Username updated.")
	}

	email := c.FormValue("email")
	if email == "" || email == user.Email {
		return c.Redirect("/profile")
	}
	email, err := s.accounts.StageEmailChange(ctx, user.ID, email)
	if err != nil {
		return flashFailure(c, err, "/profile")
	}

	if !s.featureFlags.Enabled(featureflags.EmailChangeOTP, user.ID) {
		if _, err := s.accounts.CompleteEmailChange(ctx, user.ID, email); err != nil {
			return flashFailure(c, err, "/profile")
		}
		return redirectWithFlash(c, "/profile", session.FlashSuccess, "Email updated.")
	}

	ch, err := s.verification.Send(ctx, otp.PurposeEmailChange, email)
	if err != nil {
		return redirectWithFlash(c, "/profile", session.FlashError, msgMailFailed)
	}
	session.StagePendingEmail(sess, email)
	session.SetChallenge(sess, ch)
	return redirectWithFlash(c, "/verify_email_otp", session.FlashInfo,
		"We sent a verification code to "+email+".")
}

// VerifyEmailOTPPage asks for the code sent to the new address.
func (s *Server) VerifyEmailOTPPage(c *fiber.Ctx) error {
	pending, ok := session.PendingEmail(currentSession(c))
	if !ok {
		return redirectWithFlash(c, "/profile", session.FlashWarning, otp.ErrNoChallenge.Message)
	}
	return s.render(c, "verify_email_otp", fiber.Map{
		"Email":      pending,
		"TTLMinutes": s.config.OTPTTLMinutes,
	})
}

// VerifyEmailOTP confirms the code and stores the new address.
func (s *Server) VerifyEmailOTP(c *fiber.Ctx) error {
	sess := currentSession(c)
	pending, ok := session.PendingEmail(sess)
	if !ok {
		return redirectWithFlash(c, "/profile", session.FlashWarning, otp.ErrNoChallenge.Message)
	}
	if redirect, err := s.checkCode(c, sess, otp.PurposeEmailChange, "/verify_email_otp"); redirect {
		return err
	}

	user := account(c)
	_, err := s.accounts.CompleteEmailChange(c.UserContext(), user.ID, pending)
	session.ClearPendingEmail(sess)
	if err != nil {
		return flashFailure(c, err, "/profile")
	}
	return redirectWithFlash(c, "/profile", session.FlashSuccess, "Email updated.")
}

// viewerOf maps the session identity to a recipe viewer.
func viewerOf(id *session.Identity) service.Viewer {
	if id == nil {
		return service.Viewer{}
	}
	return service.Viewer{UserID: id.UserID, IsAdmin: id.IsAdmin}
}

// isOwner reports whether id owns recipe.
func isOwner(id *session.Identity, recipe *models.Recipe) bool {
	return id != nil && recipe != nil && recipe.UserID == id.UserID
}
