package routes

import (
	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/gofiber/fiber/v2"
)

func RequestRoutes(app *fiber.App, d Deps) {
	api := app.Group("/api/v1")

	requests := api.Group("/requests", middleware.Protected(d.JWTSecret))
	requests.Post("", d.RateLimit, d.Requests.Create)
	requests.Get("/:requestId", d.Requests.Get)
	requests.Patch("/:requestId/status", d.RateLimit, d.Requests.UpdateStatus)
}
