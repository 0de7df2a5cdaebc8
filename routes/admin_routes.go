package routes

import (
	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, d Deps) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(d.JWTSecret), middleware.AdminRequired())
	admin.Post("/payments/:paymentId/refund", d.Admin.Refund)
	admin.Post("/payments/:paymentId/payouts/:fulfillerId", d.Admin.Payout)
	admin.Post("/tokens", d.Admin.IssueTokens)
}
