package jobs

import (
	"context"
	"fmt"

	"github.com/anjiri1684/letter_broker/metrics"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/sirupsen/logrus"
)

type ReminderSummary struct {
	Checked  int `json:"checked"`
	Reminded int `json:"reminded"`
	Skipped  int `json:"skipped"`
}

// SendReminders nudges fulfillers of requests that have waited more than a week,
// at most once a day per request.
func (e *Enforcer) SendReminders(ctx context.Context) (ReminderSummary, error) {
	metrics.SweepRuns.WithLabelValues("reminders").Inc()
	var sum ReminderSummary
	now := e.now().UTC()

	pending, err := e.store.Requests().ListByStatusCreatedBetween(ctx, models.RequestPendingAcceptance, now.Add(-AutoCancelAfter), now.Add(-ReminderAfter))
	if err != nil {
		return sum, fmt.Errorf("list requests awaiting acceptance: %w", err)
	}
	sum.Checked = len(pending)

	for i := range pending {
		req := &pending[i]
		sent, err := e.store.Notifications().ExistsForRequest(ctx, models.NotifyReminder, req.ID, now.Add(-ReminderInterval))
		if err != nil {
			e.log.WithError(err).WithField("request_id", req.ID).Error("check previous reminder")
			sum.Skipped++
			continue
		}
		if sent {
			sum.Skipped++
			continue
		}

		reqID := req.ID
		payload := map[string]interface{}{
			"request_id":   req.ID.String(),
			"purpose":      string(req.Purpose),
			"days_pending": daysBetween(req.CreatedAt, now),
		}
		notices := make([]services.Notice, 0, len(req.FulfillerIDs)+1)
		for _, f := range req.Fulfillers() {
			notices = append(notices, services.Notice{Type: models.NotifyReminder, RecipientID: f, RequestID: &reqID, Payload: payload})
		}
		notices = append(notices, services.Notice{Type: models.NotifyRequesterUpdate, RecipientID: req.RequesterID, RequestID: &reqID, Payload: payload})

		if err := e.notifier.Enqueue(ctx, e.store, notices...); err != nil {
			e.log.WithError(err).WithField("request_id", req.ID).Error("enqueue reminders")
			continue
		}
		sum.Reminded++
	}

	e.log.WithFields(logrus.Fields{"checked": sum.Checked, "reminded": sum.Reminded}).Info("reminder sweep finished")
	return sum, nil
}
