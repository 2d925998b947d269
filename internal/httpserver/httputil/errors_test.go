package httputil

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return resp.StatusCode, body
}

func TestWriteErrorFallsBackToStatusText(t *testing.T) {
	app := fiber.New()
	app.Get("/plain", func(c *fiber.Ctx) error { return WriteError(c, fiber.StatusTooManyRequests, "") })
	app.Get("/details", func(c *fiber.Ctx) error {
		return WriteErrorDetails(c, fiber.StatusInternalServerError, "All image generation methods failed", "template invalid")
	})
	app.Get("/no-details", func(c *fiber.Ctx) error {
		return WriteErrorDetails(c, fiber.StatusConflict, "busy", "")
	})

	status, body := decode(t, app, "/plain")
	require.Equal(t, fiber.StatusTooManyRequests, status)
	require.Equal(t, "Too Many Requests", body["error"])

	status, body = decode(t, app, "/details")
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.Equal(t, "All image generation methods failed", body["error"])
	require.Equal(t, "template invalid", body["details"])

	_, body = decode(t, app, "/no-details")
	require.NotContains(t, body, "details")
}
