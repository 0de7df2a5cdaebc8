package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/letter_broker/metrics"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/sirupsen/logrus"
)

type DeadlineSummary struct {
	Checked int `json:"checked"`
	Alerted int `json:"alerted"`
}

var activeStatuses = []models.RequestStatus{models.RequestAccepted, models.RequestInProgress}

// SendDeadlineAlerts warns every party of active requests due within three days, once per request.
func (e *Enforcer) SendDeadlineAlerts(ctx context.Context) (DeadlineSummary, error) {
	metrics.SweepRuns.WithLabelValues("deadline_alerts").Inc()
	var sum DeadlineSummary
	now := e.now().UTC()

	due, err := e.store.Requests().ListDeadlineBetween(ctx, activeStatuses, now, now.Add(DeadlineAlertWithin))
	if err != nil {
		return sum, fmt.Errorf("list requests near deadline: %w", err)
	}
	sum.Checked = len(due)

	for i := range due {
		req := &due[i]
		alerted, err := e.store.Notifications().ExistsForRequest(ctx, models.NotifyDeadlineAlert, req.ID, time.Time{})
		if err != nil {
			e.log.WithError(err).WithField("request_id", req.ID).Error("check previous deadline alert")
			continue
		}
		if alerted {
			continue
		}

		reqID := req.ID
		payload := map[string]interface{}{
			"request_id": req.ID.String(),
			"purpose":    string(req.Purpose),
			"deadline":   req.Deadline.Format("2006-01-02"),
			"status":     string(req.Status),
		}
		notices := []services.Notice{{Type: models.NotifyDeadlineAlert, RecipientID: req.RequesterID, RequestID: &reqID, Payload: payload}}
		for _, f := range req.Fulfillers() {
			notices = append(notices, services.Notice{Type: models.NotifyDeadlineAlert, RecipientID: f, RequestID: &reqID, Payload: payload})
		}
		if err := e.notifier.Enqueue(ctx, e.store, notices...); err != nil {
			e.log.WithError(err).WithField("request_id", req.ID).Error("enqueue deadline alerts")
			continue
		}
		sum.Alerted++
	}

	e.log.WithFields(logrus.Fields{"checked": sum.Checked, "alerted": sum.Alerted}).Info("deadline sweep finished")
	return sum, nil
}
