package httpserver

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/ncecere/imagegen_gateway/internal/config"
)

// corsMiddleware sets permissive CORS headers on every response and answers
// pre-flight requests with an empty 200.
func corsMiddleware(cfg config.CORSConfig) fiber.Handler {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := lo.Contains(origins, "*")
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		switch {
		case wildcard:
			c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		case origin != "" && lo.ContainsBy(origins, func(o string) bool { return strings.EqualFold(o, origin) }):
			c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
			c.Vary(fiber.HeaderOrigin)
		}
		if methods != "" {
			c.Set(fiber.HeaderAccessControlAllowMethods, methods)
		}
		if headers != "" {
			c.Set(fiber.HeaderAccessControlAllowHeaders, headers)
		}

		if c.Method() == fiber.MethodOptions {
			return c.Status(fiber.StatusOK).Send(nil)
		}
		return c.Next()
	}
}
