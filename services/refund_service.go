package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/payments"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AutoCancelReason is recorded on requests closed by the auto-cancel sweep and on their refunds.
const AutoCancelReason = "auto-cancelled, no response"

// LatePaymentRefundReason explains a refund queued for a payment captured after its request closed.
func LatePaymentRefundReason(status models.RequestStatus) string {
	if status == models.RequestAutoCancelled {
		return AutoCancelReason
	}
	return "request " + string(status) + " before the payment settled"
}

// MaxRefundAttempts is how often a queued refund is tried before it is marked failed.
const MaxRefundAttempts = 5

type RefundService struct {
	store    repository.Store
	gateway  payments.Gateway
	notifier *Notifier
	audit    Auditor
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewRefundService(store repository.Store, gateway payments.Gateway, notifier *Notifier, audit Auditor, log logrus.FieldLogger) *RefundService {
	return &RefundService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// Refund returns money for a succeeded payment. A nil amount refunds in full.
// Payments with a payout already in flight or paid are refused; reversing a payout is a separate operator action.
func (s *RefundService) Refund(ctx context.Context, paymentID uuid.UUID, reason string, amount *decimal.Decimal) (*models.Refund, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.New(errs.ValidationError, "refund reason is required")
	}

	payment, err := s.store.Payments().FindByID(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.New(errs.NotFound, "payment %s not found", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if payment.Status != models.PaymentSucceeded {
		return nil, errs.New(errs.NotEligible, "payment is %s", payment.Status)
	}

	refundAmount := payment.Amount
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount.IsNegative() || refundAmount.GreaterThan(payment.Amount) {
		return nil, errs.New(errs.NotEligible, "refund amount %s outside 0..%s", refundAmount, payment.Amount)
	}
	if payment.Amount.IsPositive() && refundAmount.IsZero() {
		return nil, errs.New(errs.NotEligible, "refund amount must be positive")
	}

	payouts, err := s.store.Payouts().ListByPayment(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	for _, p := range payouts {
		if p.Status == models.PayoutProcessing || p.Status == models.PayoutPaid {
			return nil, errs.New(errs.NotEligible, "payout %s is %s", p.ID, p.Status)
		}
	}

	refundID := uuid.New()
	var processorRef *string
	if refundAmount.IsPositive() {
		if payment.IntentID == nil {
			return nil, errs.New(errs.NotEligible, "payment %s has no processor intent", payment.ID)
		}
		id, err := s.gateway.Refund(ctx, payments.RefundParams{
			RefundID: refundID,
			IntentID: *payment.IntentID,
			Amount:   refundAmount,
			Currency: payment.Currency,
			Reason:   reason,
		})
		if err != nil {
			return nil, errs.Wrap(errs.ProcessorError, err, "refund payment %s", payment.ID)
		}
		processorRef = &id
	}

	now := s.now().UTC()
	refund := &models.Refund{
		ID:                refundID,
		PaymentID:         payment.ID,
		Amount:            refundAmount,
		Reason:            reason,
		Status:            models.RefundSucceeded,
		ProcessorRefundID: processorRef,
		Attempts:          1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Refunds().Create(ctx, refund); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errs.New(errs.NotEligible, "payment %s is already refunded", payment.ID)
			}
			return fmt.Errorf("create refund: %w", err)
		}
		changed, err := tx.Payments().MarkRefunded(ctx, payment.ID, refundAmount, reason, now)
		if err != nil {
			return fmt.Errorf("mark payment refunded: %w", err)
		}
		if !changed {
			return errs.New(errs.NotEligible, "payment %s changed concurrently", payment.ID)
		}
		return nil
	})
	if err != nil {
		if processorRef != nil {
			s.log.WithError(err).WithField("processor_refund_id", *processorRef).Error("refund issued but not recorded")
			s.audit.Record(ctx, "refund.reconcile", "payment", payment.ID.String(),
				fmt.Sprintf("processor refund %s not recorded: %v", *processorRef, err))
		}
		return nil, err
	}

	s.audit.Record(ctx, "refund.issued", "payment", payment.ID.String(), refundAmount.StringFixed(2)+" "+payment.Currency+": "+reason)
	s.notifier.Notify(ctx, s.store, refundNotice(payment, refund))
	return refund, nil
}

type RefundSummary struct {
	Succeeded int `json:"succeeded"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}

// ProcessQueued settles refunds queued by auto-cancellation.
func (s *RefundService) ProcessQueued(ctx context.Context, limit int) (RefundSummary, error) {
	var sum RefundSummary
	queued, err := s.store.Refunds().ListQueued(ctx, limit)
	if err != nil {
		return sum, fmt.Errorf("list queued refunds: %w", err)
	}

	for i := range queued {
		refund := &queued[i]
		log := s.log.WithFields(logrus.Fields{"refund_id": refund.ID, "payment_id": refund.PaymentID})

		payment, err := s.store.Payments().FindByID(ctx, refund.PaymentID)
		if err != nil {
			log.WithError(err).Error("load payment for queued refund")
			s.fail(ctx, refund, err, &sum)
			continue
		}

		var processorID string
		if refund.Amount.IsPositive() {
			if payment.IntentID == nil {
				s.fail(ctx, refund, errors.New("payment has no processor intent"), &sum)
				continue
			}
			processorID, err = s.gateway.Refund(ctx, payments.RefundParams{
				RefundID: refund.ID,
				IntentID: *payment.IntentID,
				Amount:   refund.Amount,
				Currency: payment.Currency,
				Reason:   refund.Reason,
			})
			if err != nil {
				log.WithError(err).Warn("queued refund attempt failed")
				s.fail(ctx, refund, err, &sum)
				continue
			}
		}

		changed, err := s.store.Refunds().MarkSucceeded(ctx, refund.ID, processorID, s.now().UTC())
		if err != nil {
			log.WithError(err).Error("refund settled but not recorded")
			s.audit.Record(ctx, "refund.reconcile", "refund", refund.ID.String(), err.Error())
			continue
		}
		if !changed {
			continue
		}
		sum.Succeeded++
		refund.Status = models.RefundSucceeded
		s.notifier.Notify(ctx, s.store, refundNotice(payment, refund))
	}
	return sum, nil
}

func (s *RefundService) fail(ctx context.Context, refund *models.Refund, cause error, sum *RefundSummary) {
	terminal := refund.Attempts+1 >= MaxRefundAttempts
	if err := s.store.Refunds().RecordFailure(ctx, refund.ID, cause.Error(), terminal, s.now().UTC()); err != nil {
		s.log.WithError(err).WithField("refund_id", refund.ID).Error("record refund failure")
	}
	if terminal {
		sum.Failed++
		s.audit.Record(ctx, "refund.failed", "refund", refund.ID.String(), cause.Error())
		return
	}
	sum.Retrying++
}

func refundNotice(payment *models.Payment, refund *models.Refund) Notice {
	reqID := payment.RequestID
	return Notice{
		Type:        models.NotifyRefundIssued,
		RecipientID: payment.RequesterID,
		RequestID:   &reqID,
		Payload: map[string]interface{}{
			"request_id": payment.RequestID.String(),
			"payment_id": payment.ID.String(),
			"amount":     refund.Amount.StringFixed(2),
			"currency":   payment.Currency,
			"reason":     refund.Reason,
		},
	}
}
