package routes

import (
	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/gofiber/fiber/v2"
)

func JobRoutes(app *fiber.App, d Deps) {
	jobs := app.Group("/api/v1/jobs", middleware.SchedulerSecret(d.SchedulerSecret))

	jobs.Post("/reminders", d.Jobs.Reminders())
	jobs.Post("/auto-cancel", d.Jobs.AutoCancel())
	jobs.Post("/deadline-alerts", d.Jobs.DeadlineAlerts())
	jobs.Post("/cleanup", d.Jobs.Cleanup())
	jobs.Post("/notifications/drain", d.Jobs.DrainNotifications())
	jobs.Post("/notifications/release", d.Jobs.ReleaseNotifications())
	jobs.Post("/payouts/retry", d.Jobs.RetryPayouts())
	jobs.Post("/refunds/process", d.Jobs.ProcessRefunds())
}
