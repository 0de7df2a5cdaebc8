package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/letter_broker/metrics"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/sirupsen/logrus"
)

type AutoCancelSummary struct {
	Checked       int `json:"checked"`
	Cancelled     int `json:"cancelled"`
	RefundsQueued int `json:"refunds_queued"`
}

var errAlreadyMoved = errors.New("request left pending_acceptance")

// AutoCancel cancels requests nobody accepted within two weeks and queues a refund for
// any succeeded card payment. The status write, refund row and payment update commit together.
func (e *Enforcer) AutoCancel(ctx context.Context) (AutoCancelSummary, error) {
	metrics.SweepRuns.WithLabelValues("auto_cancel").Inc()
	var sum AutoCancelSummary
	now := e.now().UTC()

	stale, err := e.store.Requests().ListByStatusCreatedBetween(ctx, models.RequestPendingAcceptance, time.Time{}, now.Add(-AutoCancelAfter))
	if err != nil {
		return sum, fmt.Errorf("list expired requests: %w", err)
	}
	sum.Checked = len(stale)

	for i := range stale {
		req := &stale[i]
		log := e.log.WithField("request_id", req.ID)

		var refund *models.Refund
		var payment *models.Payment
		err := e.store.InTx(ctx, func(tx repository.Store) error {
			reason := autoCancelReason
			changed, err := tx.Requests().UpdateStatus(ctx, req.ID, models.RequestPendingAcceptance, models.RequestAutoCancelled, &reason, now)
			if err != nil {
				return err
			}
			if !changed {
				return errAlreadyMoved
			}

			p, err := tx.Payments().FindOpenByRequest(ctx, req.ID)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if p.Status != models.PaymentSucceeded || !p.Amount.IsPositive() {
				return nil
			}

			r := &models.Refund{
				PaymentID: p.ID,
				Amount:    p.Amount,
				Reason:    autoCancelReason,
				Status:    models.RefundQueued,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Refunds().Create(ctx, r); err != nil {
				return fmt.Errorf("queue refund: %w", err)
			}
			refunded, err := tx.Payments().MarkRefunded(ctx, p.ID, p.Amount, autoCancelReason, now)
			if err != nil {
				return err
			}
			if !refunded {
				return fmt.Errorf("payment %s changed during auto-cancel", p.ID)
			}
			refund, payment = r, p
			return nil
		})
		if errors.Is(err, errAlreadyMoved) {
			continue
		}
		if err != nil {
			log.WithError(err).Error("auto-cancel request")
			continue
		}

		sum.Cancelled++
		detail := "no response within 14 days"
		reqID := req.ID
		payload := map[string]interface{}{
			"request_id": req.ID.String(),
			"status":     string(models.RequestAutoCancelled),
			"purpose":    string(req.Purpose),
		}
		if refund != nil {
			sum.RefundsQueued++
			payload["refund_amount"] = refund.Amount.StringFixed(2)
			payload["currency"] = payment.Currency
			detail += ", refund " + refund.ID.String() + " queued"
		}
		e.audit.Record(ctx, "request.auto_cancelled", "request", req.ID.String(), detail)
		e.notifier.Notify(ctx, e.store, services.Notice{
			Type:        models.NotifyRequesterUpdate,
			RecipientID: req.RequesterID,
			RequestID:   &reqID,
			Payload:     payload,
		})
	}

	e.log.WithFields(logrus.Fields{"checked": sum.Checked, "cancelled": sum.Cancelled, "refunds_queued": sum.RefundsQueued}).Info("auto-cancel sweep finished")
	return sum, nil
}
