package handlers

import (
	"context"

	"github.com/anjiri1684/letter_broker/jobs"
	"github.com/anjiri1684/letter_broker/notifications"
	"github.com/gofiber/fiber/v2"
)

// JobHandler exposes the lifecycle sweeps to an external scheduler.
type JobHandler struct {
	enforcer *jobs.Enforcer
	queue    jobs.Drainer
}

func NewJobHandler(enforcer *jobs.Enforcer, queue jobs.Drainer) *JobHandler {
	return &JobHandler{enforcer: enforcer, queue: queue}
}

func runSweep[T any](sweep func(ctx context.Context) (T, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summary, err := sweep(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "success", "summary": summary})
	}
}

func (h *JobHandler) Reminders() fiber.Handler      { return runSweep(h.enforcer.SendReminders) }
func (h *JobHandler) AutoCancel() fiber.Handler     { return runSweep(h.enforcer.AutoCancel) }
func (h *JobHandler) DeadlineAlerts() fiber.Handler { return runSweep(h.enforcer.SendDeadlineAlerts) }
func (h *JobHandler) Cleanup() fiber.Handler        { return runSweep(h.enforcer.Cleanup) }
func (h *JobHandler) RetryPayouts() fiber.Handler   { return runSweep(h.enforcer.RetryPayouts) }
func (h *JobHandler) ProcessRefunds() fiber.Handler { return runSweep(h.enforcer.ProcessRefunds) }
func (h *JobHandler) ReleaseNotifications() fiber.Handler {
	return runSweep(h.enforcer.ReleaseStuckNotifications)
}

func (h *JobHandler) DrainNotifications() fiber.Handler {
	return runSweep(func(ctx context.Context) (notifications.DrainResult, error) {
		return h.queue.Drain(ctx, notifications.DefaultBatchSize)
	})
}
