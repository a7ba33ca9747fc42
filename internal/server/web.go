package server

import (
	"errors"
	"log/slog"
	"strings"

	"recipebox/internal/featureflags"
	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/session"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
)

// Fiber locals set by the session loader and the guards.
const (
	localSession  = "session"
	localIdentity = "identity"
	localAccount  = "account"

	csrfContextKey = "csrf"
	csrfFormField  = "_csrf"
)

// nonPagePrefixes are served without browser session state.
var nonPagePrefixes = []string{"/api", "/health", "/metrics", "/uploads", "/ws"}

// isPagePath reports whether path is a browser page or form endpoint.
func isPagePath(path string) bool {
	for _, prefix := range nonPagePrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return false
		}
	}
	return true
}

// loadSession attaches the browser session to page requests and records
// the logged-in identity for logging and rate limiting. The session is
// saved after the handler runs; fresh sessions that stayed empty are not
// stored. WebSocket upgrades read the session without saving it.
func (s *Server) loadSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		isSocket := strings.HasPrefix(path, "/ws/")
		if !isPagePath(path) && !isSocket {
			return c.Next()
		}

		sess, err := s.sessions.Get(c)
		if err != nil {
			return err
		}
		c.Locals(localSession, sess)
		if id, ok := session.Current(sess); ok {
			c.Locals(localIdentity, &id)
			c.Locals("userID", id.UserID)
			c.SetUserContext(middleware.WithUserID(c.UserContext(), id.UserID))
		}

		err = c.Next()
		if isSocket || (sess.Fresh() && len(sess.Keys()) == 0) {
			return err
		}
		if saveErr := sess.Save(); saveErr != nil {
			middleware.Logger.ErrorContext(c.UserContext(), "Failed to save session", slog.String("error", saveErr.Error()))
			if err == nil {
				err = saveErr
			}
		}
		return err
	}
}

// currentSession returns the request's session. It is nil outside page routes.
func currentSession(c *fiber.Ctx) *fibersession.Session {
	sess, _ := c.Locals(localSession).(*fibersession.Session)
	return sess
}

// identity returns the logged-in account recorded in the session, or nil.
func identity(c *fiber.Ctx) *session.Identity {
	id, _ := c.Locals(localIdentity).(*session.Identity)
	return id
}

// account returns the account loaded by requireLogin.
func account(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localAccount).(*models.User)
	return user
}

// loadAccount re-reads the session's account so deleted accounts and
// changed roles take effect on the next request. A missing account ends
// the session.
func (s *Server) loadAccount(c *fiber.Ctx) (*models.User, error) {
	id := identity(c)
	if id == nil {
		return nil, nil
	}
	user, err := s.accounts.GetUser(c.UserContext(), id.UserID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			sess := currentSession(c)
			if logoutErr := session.Logout(sess); logoutErr != nil {
				return nil, logoutErr
			}
			c.Locals(localIdentity, nil)
			session.AddFlash(sess, session.FlashWarning, "Your account no longer exists.")
			return nil, nil
		}
		return nil, err
	}
	if user.IsAdmin != id.IsAdmin {
		if err := session.Login(currentSession(c), user); err != nil {
			return nil, err
		}
		refreshed := session.Identity{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}
		c.Locals(localIdentity, &refreshed)
	}
	c.Locals(localAccount, user)
	return user, nil
}

// requireLogin redirects anonymous visitors to the login page.
func (s *Server) requireLogin(c *fiber.Ctx) error {
	if identity(c) == nil {
		return redirectWithFlash(c, "/login", session.FlashInfo, "Please log in first.")
	}
	user, err := s.loadAccount(c)
	if err != nil {
		return err
	}
	if user == nil {
		return c.Redirect("/login")
	}
	return c.Next()
}

// requireAdmin redirects everyone but administrators to the login page.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	user, err := s.loadAccount(c)
	if err != nil {
		return err
	}
	if user == nil || !user.IsAdmin {
		return redirectWithFlash(c, "/login", session.FlashError, "Administrator access required.")
	}
	return c.Next()
}

// requireAdminJSON is requireAdmin for the AJAX endpoint: a bare JSON 403.
func (s *Server) requireAdminJSON(c *fiber.Ctx) error {
	user, err := s.loadAccount(c)
	if err != nil {
		return err
	}
	if user == nil || !user.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

// render executes a page with the layout data every page shares.
func (s *Server) render(c *fiber.Ctx, page string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	id := identity(c)
	data["User"] = id
	data["Flashes"] = session.PopFlashes(currentSession(c))
	data["CSRF"], _ = c.Locals(csrfContextKey).(string)
	data["LiveNotifications"] = id != nil && s.hub != nil &&
		s.featureFlags.Enabled(featureflags.LiveNotifications, id.UserID)
	return c.Render(page, data)
}

// renderError writes the error page. It does not touch the session, which
// may already be saved.
func (s *Server) renderError(c *fiber.Ctx, status int, message string) error {
	c.Status(status)
	err := c.Render("error", fiber.Map{
		"User":    identity(c),
		"Status":  status,
		"Message": message,
	})
	if err != nil {
		return c.Status(status).SendString(message)
	}
	return nil
}

// flash queues a message for the next page.
func flash(c *fiber.Ctx, kind, message string) {
	if sess := currentSession(c); sess != nil {
		session.AddFlash(sess, kind, message)
	}
}

// redirectWithFlash queues a message and redirects.
func redirectWithFlash(c *fiber.Ctx, to, kind, message string) error {
	flash(c, kind, message)
	return c.Redirect(to)
}

// flashFailure turns an expected domain failure into a flash and a
// redirect. Internal errors are returned for the error page.
func flashFailure(c *fiber.Ctx, err error, to string) error {
	var appErr *models.AppError
	if !asAppError(err, &appErr) {
		return err
	}
	kind := session.FlashError
	if appErr.Code == models.CodeConflict {
		kind = session.FlashWarning
	}
	return redirectWithFlash(c, to, kind, appErr.Message)
}

// asAppError reports whether err carries a user-facing AppError.
func asAppError(err error, target **models.AppError) bool {
	return errors.As(err, target) && (*target).Code != models.CodeInternal
}

// csrfStorage keeps CSRF tokens next to the sessions.
func csrfStorage(rdb *redis.Client) fiber.Storage {
	if rdb == nil {
		return nil
	}
	return session.NewRedisStorage(rdb, "csrf:")
}
