package server

import (
	"net/url"
	"strings"

	"recipebox/internal/models"

	"github.com/gofiber/fiber/v2"
)

const maxPageSize = 100

// Pagination is a limit/offset window over a listing.
type Pagination struct {
	Limit  int
	Offset int
}

// pageParams reads ?limit and ?offset. Missing or nonsensical values fall
// back to def and zero; limit is capped at maxPageSize.
func pageParams(c *fiber.Ctx, def int) Pagination {
	p := Pagination{Limit: c.QueryInt("limit", def), Offset: c.QueryInt("offset", 0)}
	if p.Limit <= 0 {
		p.Limit = def
	}
	p.Limit = min(p.Limit, maxPageSize)
	p.Offset = max(p.Offset, 0)
	return p
}

// routeID reads the :id route parameter as a positive integer.
func routeID(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

func badID(c *fiber.Ctx) error {
	return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid ID"))
}

// backTo returns the path of a same-origin Referer, or fallback.
func backTo(c *fiber.Ctx, fallback string) string {
	ref, err := url.Parse(c.Get(fiber.HeaderReferer))
	if err != nil || ref.Host != c.Hostname() || !strings.HasPrefix(ref.Path, "/") || strings.HasPrefix(ref.Path, "//") {
		return fallback
	}
	return ref.RequestURI()
}
