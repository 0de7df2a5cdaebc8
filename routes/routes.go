package routes

import (
	"github.com/anjiri1684/letter_broker/handlers"
	"github.com/anjiri1684/letter_broker/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Requests      *handlers.RequestHandler
	Payments      *handlers.PaymentHandler
	Admin         *handlers.AdminHandler
	Jobs          *handlers.JobHandler
	Notifications *handlers.NotificationHandler
	Hub           *websocket.Hub

	JWTSecret       string
	SchedulerSecret string
	// RateLimit guards the user facing write routes.
	RateLimit fiber.Handler
	Log       logrus.FieldLogger
}

func Register(app *fiber.App, d Deps) {
	if d.RateLimit == nil {
		d.RateLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	RequestRoutes(app, d)
	PaymentRoutes(app, d)
	AdminRoutes(app, d)
	JobRoutes(app, d)
	NotificationRoutes(app, d)
}
