package httputil

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// WriteError standardizes JSON error responses.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": errorText(status, msg),
	})
}

// WriteErrorDetails adds a details field for failures where the cause is
// useful to the caller.
func WriteErrorDetails(c *fiber.Ctx, status int, msg, details string) error {
	body := fiber.Map{"error": errorText(status, msg)}
	if details != "" {
		body["details"] = details
	}
	return c.Status(status).JSON(body)
}

func errorText(status int, msg string) string {
	if msg != "" {
		return msg
	}
	if msg = http.StatusText(status); msg != "" {
		return msg
	}
	return "unknown error"
}
