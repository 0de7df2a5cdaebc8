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
)

// MaxPayoutAttempts bounds the scheduled transfer retries of a pending payout.
const MaxPayoutAttempts = 5

type SettlementService struct {
	store    repository.Store
	gateway  payments.Gateway
	notifier *Notifier
	audit    Auditor
	share    decimal.Decimal
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewSettlementService(store repository.Store, gateway payments.Gateway, notifier *Notifier, audit Auditor, share decimal.Decimal, log logrus.FieldLogger) *SettlementService {
	return &SettlementService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		audit:    audit,
		share:    share,
		log:      log,
		now:      time.Now,
	}
}

// Payout pays fulfillerID its share of paymentID. The unique (fulfiller, payment) index is
// the double-payout guard; the earlier reads only produce friendlier errors.
func (s *SettlementService) Payout(ctx context.Context, fulfillerID, paymentID uuid.UUID) (*models.Payout, error) {
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

	req, err := s.store.Requests().FindByID(ctx, payment.RequestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.New(errs.NotFound, "request %s not found", payment.RequestID)
	}
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if !req.HasFulfiller(fulfillerID) {
		return nil, errs.New(errs.NotAssigned, "fulfiller %s is not assigned to request %s", fulfillerID, req.ID)
	}

	existing, err := s.store.Payouts().ListByPayment(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	paid := decimal.Zero
	for _, p := range existing {
		if p.FulfillerID == fulfillerID {
			return nil, errs.New(errs.AlreadyPaid, "payout already exists for fulfiller %s", fulfillerID)
		}
		paid = paid.Add(p.Amount)
	}

	amount := payments.SplitShare(payment.Amount, s.share, len(req.FulfillerIDs))
	if !amount.IsPositive() {
		return nil, errs.New(errs.NotEligible, "payment %s has nothing to pay out", payment.ID)
	}
	if paid.Add(amount).GreaterThan(payment.Amount) {
		return nil, errs.New(errs.NotEligible, "payouts would exceed payment %s", payment.ID)
	}

	destination, err := s.payee(ctx, fulfillerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payout := &models.Payout{
		ID:          uuid.New(),
		FulfillerID: fulfillerID,
		PaymentID:   payment.ID,
		Amount:      amount,
		Currency:    payment.Currency,
		Status:      models.PayoutPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Payouts().Create(ctx, payout); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errs.New(errs.AlreadyPaid, "payout already exists for fulfiller %s", fulfillerID)
		}
		return nil, fmt.Errorf("create payout: %w", err)
	}
	s.audit.Record(ctx, "payout.created", "payout", payout.ID.String(), amount.StringFixed(2)+" "+payout.Currency)

	return payout, s.transfer(ctx, payout, destination)
}

func (s *SettlementService) payee(ctx context.Context, fulfillerID uuid.UUID) (string, error) {
	acct, err := s.store.Directory().FindPayee(ctx, fulfillerID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && acct.StripeAccountID == "") {
		return "", errs.New(errs.PayeeNotConfigured, "fulfiller %s has no payee account", fulfillerID)
	}
	if err != nil {
		return "", fmt.Errorf("load payee: %w", err)
	}
	ready, err := s.gateway.PayeeReady(ctx, acct.StripeAccountID)
	if err != nil {
		return "", errs.Wrap(errs.ProcessorError, err, "check payee account")
	}
	if !ready {
		return "", errs.New(errs.PayeeNotConfigured, "payee account of fulfiller %s cannot receive payouts", fulfillerID)
	}
	return acct.StripeAccountID, nil
}

// transfer leaves the payout pending on failure so the retry sweep picks it up.
func (s *SettlementService) transfer(ctx context.Context, payout *models.Payout, destination string) error {
	log := s.log.WithFields(logrus.Fields{"payout_id": payout.ID, "fulfiller_id": payout.FulfillerID})

	transferID, err := s.gateway.Transfer(ctx, payments.TransferParams{
		PayoutID:    payout.ID,
		FulfillerID: payout.FulfillerID,
		Destination: destination,
		Amount:      payout.Amount,
		Currency:    payout.Currency,
	})
	if err != nil {
		metrics.Payouts.WithLabelValues("error").Inc()
		log.WithError(err).Warn("transfer failed, payout stays pending")
		if rerr := s.store.Payouts().RecordFailure(ctx, payout.ID, err.Error(), s.now().UTC()); rerr != nil {
			log.WithError(rerr).Error("record payout failure")
		}
		payout.Attempts++
		reason := err.Error()
		payout.FailureReason = &reason
		return errs.Wrap(errs.ProcessorError, err, "transfer for payout %s", payout.ID)
	}

	changed, err := s.store.Payouts().MarkProcessing(ctx, payout.ID, transferID, s.now().UTC())
	if err != nil {
		log.WithError(err).WithField("transfer_id", transferID).Error("transfer created but payout not updated")
		s.audit.Record(ctx, "payout.reconcile", "payout", payout.ID.String(), "transfer "+transferID+" not recorded: "+err.Error())
		return fmt.Errorf("record transfer: %w", err)
	}
	payout.TransferID = &transferID
	if changed {
		payout.Status = models.PayoutProcessing
		payout.FailureReason = nil
	}
	metrics.Payouts.WithLabelValues("initiated").Inc()
	log.WithField("transfer_id", transferID).Info("payout transfer initiated")
	return nil
}

// PayoutForRequest pays every fulfiller of a completed request. Fulfillers already paid are skipped.
func (s *SettlementService) PayoutForRequest(ctx context.Context, req *models.Request) error {
	var payment *models.Payment
	var err error
	if req.PaymentID != nil {
		payment, err = s.store.Payments().FindByID(ctx, *req.PaymentID)
	} else {
		payment, err = s.store.Payments().FindOpenByRequest(ctx, req.ID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if payment.Status != models.PaymentSucceeded || !payment.Amount.IsPositive() {
		return nil
	}

	var failures []error
	for _, fulfillerID := range req.Fulfillers() {
		if _, err := s.Payout(ctx, fulfillerID, payment.ID); err != nil && !errors.Is(err, errs.ErrAlreadyPaid) {
			failures = append(failures, fmt.Errorf("fulfiller %s: %w", fulfillerID, err))
		}
	}
	return errors.Join(failures...)
}

type RetrySummary struct {
	Checked   int `json:"checked"`
	Initiated int `json:"initiated"`
	Failed    int `json:"failed"`
}

// RetryPending re-attempts transfers for payouts stuck in pending for longer than olderThan.
func (s *SettlementService) RetryPending(ctx context.Context, olderThan time.Duration, limit int) (RetrySummary, error) {
	var sum RetrySummary
	pending, err := s.store.Payouts().ListPendingBefore(ctx, s.now().UTC().Add(-olderThan), MaxPayoutAttempts, limit)
	if err != nil {
		return sum, fmt.Errorf("list pending payouts: %w", err)
	}

	for i := range pending {
		payout := &pending[i]
		sum.Checked++

		destination, err := s.payee(ctx, payout.FulfillerID)
		if err != nil {
			sum.Failed++
			if rerr := s.store.Payouts().RecordFailure(ctx, payout.ID, err.Error(), s.now().UTC()); rerr != nil {
				s.log.WithError(rerr).WithField("payout_id", payout.ID).Error("record payout failure")
			}
			continue
		}
		if err := s.transfer(ctx, payout, destination); err != nil {
			sum.Failed++
			if payout.Attempts >= MaxPayoutAttempts {
				s.audit.Record(ctx, "payout.retries_exhausted", "payout", payout.ID.String(), err.Error())
			}
			continue
		}
		sum.Initiated++
	}
	return sum, nil
}
