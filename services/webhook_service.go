package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/metrics"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/payments"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Normalized event kinds handled by the settlement core.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventTransferCreated  = "transfer.created"
	EventTransferPaid     = "transfer.paid"
	EventTransferFailed   = "transfer.failed"
)

var eventKinds = map[string]string{
	"payment_intent.succeeded":      EventPaymentSucceeded,
	"payment_intent.payment_failed": EventPaymentFailed,
	"transfer.created":              EventTransferCreated,
	"transfer.paid":                 EventTransferPaid,
	"transfer.failed":               EventTransferFailed,
	"transfer.reversed":             EventTransferFailed,
}

func normalizeEventType(t string) string {
	return eventKinds[t]
}

type WebhookService struct {
	store    repository.Store
	notifier *Notifier
	audit    Auditor
	secret   string
	timeout  time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewWebhookService(store repository.Store, notifier *Notifier, audit Auditor, secret string, timeout time.Duration, log logrus.FieldLogger) *WebhookService {
	return &WebhookService{
		store:    store,
		notifier: notifier,
		audit:    audit,
		secret:   secret,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

// Handle verifies and applies one processor event. Only a bad signature or a failure to record the
// event is returned; errors while applying it are audited and the delivery is still acknowledged.
func (s *WebhookService) Handle(ctx context.Context, body []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(body, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return errs.Wrap(errs.InvalidSignature, err, "webhook signature verification failed")
	}

	kind := normalizeEventType(string(event.Type))
	log := s.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})
	if kind == "" {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		log.Debug("ignoring webhook event")
		return nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	claimed, err := s.store.Events().Begin(ctx, event.ID, string(event.Type), s.now().UTC())
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("record webhook event: %w", err)
	}
	if !claimed {
		metrics.WebhookEvents.WithLabelValues(kind, "duplicate").Inc()
		log.Info("webhook event already handled")
		return nil
	}

	procErr := s.apply(ctx, kind, &event)
	if procErr != nil {
		metrics.WebhookEvents.WithLabelValues(kind, "error").Inc()
		log.WithError(procErr).Error("webhook event left for reconciliation")
		s.audit.Record(ctx, "webhook.reconcile", "webhook_event", event.ID, kind+": "+procErr.Error())
	} else {
		metrics.WebhookEvents.WithLabelValues(kind, "processed").Inc()
	}
	if err := s.store.Events().Finish(ctx, event.ID, procErr, s.now().UTC()); err != nil {
		log.WithError(err).Error("finish webhook event")
	}
	return nil
}

func (s *WebhookService) apply(ctx context.Context, kind string, event *stripe.Event) error {
	switch kind {
	case EventPaymentSucceeded:
		return s.paymentSucceeded(ctx, event)
	case EventPaymentFailed:
		return s.paymentFailed(ctx, event)
	case EventTransferCreated:
		return s.transferUpdated(ctx, event, models.PayoutProcessing, []models.PayoutStatus{models.PayoutPending})
	case EventTransferPaid:
		return s.transferUpdated(ctx, event, models.PayoutPaid, []models.PayoutStatus{models.PayoutPending, models.PayoutProcessing})
	case EventTransferFailed:
		return s.transferUpdated(ctx, event, models.PayoutFailed, []models.PayoutStatus{models.PayoutPending, models.PayoutProcessing, models.PayoutPaid})
	}
	return nil
}

func (s *WebhookService) paymentSucceeded(ctx context.Context, event *stripe.Event) error {
	intentID := event.GetObjectValue("id")
	if intentID == "" {
		return errors.New("payment intent id missing")
	}
	receipt := event.GetObjectValue("latest_charge")
	if receipt == "" {
		receipt = intentID
	}

	changed, err := s.store.Payments().MarkSucceeded(ctx, intentID, receipt, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark payment succeeded: %w", err)
	}
	payment, err := s.store.Payments().FindByIntentID(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("no payment for intent %s", intentID)
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if payment.Status != models.PaymentSucceeded {
		return nil
	}
	if changed {
		s.checkAmount(ctx, event, payment)
	}

	if _, err := s.store.Requests().LinkPayment(ctx, payment.RequestID, payment.ID); err != nil {
		return fmt.Errorf("link payment to request: %w", err)
	}
	req, err := s.store.Requests().FindByID(ctx, payment.RequestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}

	switch req.Status {
	case models.RequestCancelled, models.RequestAutoCancelled, models.RequestDeclined:
		// Checked on replays too, so a refund lost to an earlier failure is still queued.
		return s.refundLatePayment(ctx, payment, req)
	case models.RequestCompleted:
		if changed {
			s.audit.Record(ctx, "payment.after_terminal", "payment", payment.ID.String(), "request is completed, payout needs an operator")
		}
		return nil
	}
	if !changed {
		return nil
	}

	s.audit.Record(ctx, "payment.succeeded", "payment", payment.ID.String(), receipt)
	return s.enqueue(ctx, newRequestNotices(req)...)
}

// checkAmount compares the captured amount with the amount we asked for.
func (s *WebhookService) checkAmount(ctx context.Context, event *stripe.Event, payment *models.Payment) {
	raw := event.GetObjectValue("amount_received")
	if raw == "" {
		return
	}
	// Numbers in the event body may be rendered in exponent form.
	units, err := decimal.NewFromString(raw)
	if err != nil {
		s.log.WithError(err).WithField("amount_received", raw).Warn("unreadable amount_received")
		return
	}
	received := payments.FromMinorUnits(units.IntPart(), payment.Currency)
	if !received.Equal(payment.Amount) {
		s.audit.Record(ctx, "payment.amount_mismatch", "payment", payment.ID.String(),
			fmt.Sprintf("expected %s, received %s %s", payment.Amount.StringFixed(2), received.StringFixed(2), payment.Currency))
	}
}

// refundLatePayment queues a full refund for a payment captured after its request was closed.
// The unique refund per payment makes it safe to call on every replay.
func (s *WebhookService) refundLatePayment(ctx context.Context, payment *models.Payment, req *models.Request) error {
	if !payment.Amount.IsPositive() {
		return nil
	}
	reason := LatePaymentRefundReason(req.Status)
	now := s.now().UTC()
	refund := &models.Refund{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		Reason:    reason,
		Status:    models.RefundQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Refunds().Create(ctx, refund); err != nil {
			return err
		}
		refunded, err := tx.Payments().MarkRefunded(ctx, payment.ID, payment.Amount, reason, now)
		if err != nil {
			return fmt.Errorf("mark payment refunded: %w", err)
		}
		if !refunded {
			return fmt.Errorf("payment %s changed before its refund was queued", payment.ID)
		}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("queue refund for late payment: %w", err)
	}
	s.audit.Record(ctx, "payment.after_terminal", "payment", payment.ID.String(),
		"request is "+string(req.Status)+", refund "+refund.ID.String()+" queued")
	return nil
}

// enqueue queues notices for a change that is already committed. A failure is returned so the
// event ends up failed and the reconcile audit entry names the lost notices.
func (s *WebhookService) enqueue(ctx context.Context, notices ...Notice) error {
	if err := s.notifier.Enqueue(ctx, s.store, notices...); err != nil {
		return fmt.Errorf("queue notifications: %w", err)
	}
	return nil
}

func (s *WebhookService) paymentFailed(ctx context.Context, event *stripe.Event) error {
	intentID := event.GetObjectValue("id")
	if intentID == "" {
		return errors.New("payment intent id missing")
	}
	reason := event.GetObjectValue("last_payment_error", "message")
	if reason == "" {
		reason = "payment failed"
	}

	changed, err := s.store.Payments().MarkFailed(ctx, intentID, reason, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	if !changed {
		return s.ensureKnownIntent(ctx, intentID)
	}

	payment, err := s.store.Payments().FindByIntentID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	reqID := payment.RequestID
	return s.enqueue(ctx, Notice{
		Type:        models.NotifyPaymentFailed,
		RecipientID: payment.RequesterID,
		RequestID:   &reqID,
		Payload: map[string]interface{}{
			"request_id": payment.RequestID.String(),
			"payment_id": payment.ID.String(),
			"reason":     reason,
		},
	})
}

// ensureKnownIntent turns "nothing changed" into an error when the intent is not ours at all.
func (s *WebhookService) ensureKnownIntent(ctx context.Context, intentID string) error {
	_, err := s.store.Payments().FindByIntentID(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("no payment for intent %s", intentID)
	}
	return err
}

func (s *WebhookService) transferUpdated(ctx context.Context, event *stripe.Event, to models.PayoutStatus, from []models.PayoutStatus) error {
	transferID := event.GetObjectValue("id")
	if transferID == "" {
		return errors.New("transfer id missing")
	}
	var payoutID *uuid.UUID
	if raw := event.GetObjectValue("metadata", "payout_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			payoutID = &id
		}
	}
	var reason *string
	if to == models.PayoutFailed {
		r := "transfer " + string(event.Type)
		reason = &r
	}

	payout, changed, err := s.store.Payouts().UpdateFromTransfer(ctx, transferID, payoutID, to, from, reason, s.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("no payout for transfer %s", transferID)
	}
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if !changed {
		return nil
	}

	payload := map[string]interface{}{
		"payout_id":   payout.ID.String(),
		"payment_id":  payout.PaymentID.String(),
		"amount":      payout.Amount.StringFixed(2),
		"currency":    payout.Currency,
		"transfer_id": transferID,
	}
	switch to {
	case models.PayoutPaid:
		metrics.Payouts.WithLabelValues("paid").Inc()
		return s.enqueue(ctx, Notice{Type: models.NotifyPayoutSucceeded, RecipientID: payout.FulfillerID, Payload: payload})
	case models.PayoutFailed:
		metrics.Payouts.WithLabelValues("failed").Inc()
		s.audit.Record(ctx, "payout.failed", "payout", payout.ID.String(), *reason)
		return s.enqueue(ctx, Notice{Type: models.NotifyPayoutFailed, RecipientID: payout.FulfillerID, Payload: payload})
	}
	return nil
}
