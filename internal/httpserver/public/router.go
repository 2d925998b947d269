package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/imagegen_gateway/internal/app"
)

// generatePaths lists the mount points for the generation endpoint; the /api
// variant matches the serverless deployment layout.
var generatePaths = []string{"/generate-image", "/api/generate-image"}

// Register wires up the public image generation routes.
func Register(app *fiber.App, container *app.Container) {
	handler := newGenerateHandler(container)
	for _, path := range generatePaths {
		app.Post(path, handler.generate)
		app.All(path, methodNotAllowed)
	}
}
