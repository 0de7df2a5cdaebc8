package routes

import (
	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, d Deps) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", d.Payments.Webhook)

	payments := api.Group("/payments", middleware.Protected(d.JWTSecret))
	payments.Post("/initiate", d.RateLimit, d.Payments.Initiate)
}
