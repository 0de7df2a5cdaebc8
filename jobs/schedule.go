package jobs

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/notifications"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Drainer interface {
	Drain(ctx context.Context, batchSize int) (notifications.DrainResult, error)
}

const sweepTimeout = 5 * time.Minute

// Schedule registers every sweep on c. The HTTP job endpoints run the same sweeps.
func Schedule(c *cron.Cron, e *Enforcer, queue Drainer, log logrus.FieldLogger) error {
	entries := []struct {
		spec string
		name string
		run  func(ctx context.Context) (interface{}, error)
	}{
		{"@every 1m", "notifications_drain", func(ctx context.Context) (interface{}, error) {
			return queue.Drain(ctx, notifications.DefaultBatchSize)
		}},
		{"*/5 * * * *", "payout_retry", func(ctx context.Context) (interface{}, error) { return e.RetryPayouts(ctx) }},
		{"*/5 * * * *", "refunds", func(ctx context.Context) (interface{}, error) { return e.ProcessRefunds(ctx) }},
		{"*/5 * * * *", "release_notifications", func(ctx context.Context) (interface{}, error) { return e.ReleaseStuckNotifications(ctx) }},
		{"0 * * * *", "reminders", func(ctx context.Context) (interface{}, error) { return e.SendReminders(ctx) }},
		{"15 * * * *", "auto_cancel", func(ctx context.Context) (interface{}, error) { return e.AutoCancel(ctx) }},
		{"30 */6 * * *", "deadline_alerts", func(ctx context.Context) (interface{}, error) { return e.SendDeadlineAlerts(ctx) }},
		{"45 3 * * *", "cleanup", func(ctx context.Context) (interface{}, error) { return e.Cleanup(ctx) }},
	}

	for _, entry := range entries {
		entry := entry
		if _, err := c.AddFunc(entry.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			defer cancel()
			summary, err := entry.run(ctx)
			if err != nil {
				log.WithError(err).WithField("sweep", entry.name).Error("scheduled sweep failed")
				return
			}
			log.WithFields(logrus.Fields{"sweep": entry.name, "summary": summary}).Debug("scheduled sweep done")
		}); err != nil {
			return err
		}
	}
	return nil
}
