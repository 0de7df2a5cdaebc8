package routes

import (
	"github.com/anjiri1684/letter_broker/handlers"
	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func NotificationRoutes(app *fiber.App, d Deps) {
	api := app.Group("/api/v1")

	inbox := api.Group("/notifications", middleware.Protected(d.JWTSecret))
	inbox.Get("", d.Notifications.List)
	inbox.Patch("/:id/read", d.Notifications.MarkRead)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(handlers.ServeWs(d.Hub, d.JWTSecret, d.Log)))
}
