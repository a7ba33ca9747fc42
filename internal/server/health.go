package server

import (
	"context"
	"time"

	"recipebox/internal/database"

	"github.com/gofiber/fiber/v2"
)

const (
	checkHealthy   = "healthy"
	checkUnhealthy = "unhealthy"
	checkDisabled  = "disabled"

	readinessTimeout = 5 * time.Second
)

func probe(err error) string {
	if err != nil {
		return checkUnhealthy
	}
	return checkHealthy
}

// LivenessCheck answers as long as the process serves requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now()})
}

// ReadinessCheck pings the database and Redis. Running without Redis is
// allowed, so a server with no client reports it disabled and stays ready;
// a configured Redis that does not answer fails readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	checks := fiber.Map{
		"database": probe(database.Ping(ctx, s.db)),
		"redis":    checkDisabled,
	}
	if s.redis != nil {
		checks["redis"] = probe(s.redis.Ping(ctx).Err())
	}

	code, overall := fiber.StatusOK, checkHealthy
	for _, v := range checks {
		if v == checkUnhealthy {
			code, overall = fiber.StatusServiceUnavailable, checkUnhealthy
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"service": "recipebox",
		"version": "1.0.0",
		"status":  overall,
		"checks":  checks,
		"time":    time.Now(),
	})
}
