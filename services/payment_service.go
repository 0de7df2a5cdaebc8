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

type Pricing struct {
	Price    decimal.Decimal
	Currency string
}

type InitiateInput struct {
	RequesterID  uuid.UUID
	RequestID    uuid.UUID
	FulfillerIDs []uuid.UUID
	TokenCode    string
}

type InitiateResult struct {
	PaymentID    uuid.UUID            `json:"payment_id"`
	ClientSecret string               `json:"client_secret"`
	Status       models.PaymentStatus `json:"status"`
}

type PaymentService struct {
	store    repository.Store
	gateway  payments.Gateway
	notifier *Notifier
	audit    Auditor
	pricing  Pricing
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewPaymentService(store repository.Store, gateway payments.Gateway, notifier *Notifier, audit Auditor, pricing Pricing, log logrus.FieldLogger) *PaymentService {
	pricing.Currency = strings.ToLower(pricing.Currency)
	return &PaymentService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		audit:    audit,
		pricing:  pricing,
		log:      log,
		now:      time.Now,
	}
}

// Initiate starts payment for a request, either by redeeming a token or by opening a
// processor intent. Repeated calls for the same request return the same payment.
func (s *PaymentService) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	req, err := s.store.Requests().FindByID(ctx, in.RequestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.New(errs.NotFound, "request %s not found", in.RequestID)
	}
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req.RequesterID != in.RequesterID {
		return nil, errs.New(errs.Forbidden, "request %s belongs to another requester", in.RequestID)
	}
	if !sameFulfillers(req, in.FulfillerIDs) {
		return nil, errs.New(errs.ValidationError, "fulfillers do not match request %s", in.RequestID)
	}

	if req.PaymentID != nil {
		p, err := s.store.Payments().FindByID(ctx, *req.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("load linked payment: %w", err)
		}
		return s.resultFor(ctx, p)
	}
	if req.Status.Terminal() {
		return nil, errs.New(errs.NotEligible, "request is %s", req.Status)
	}

	open, err := s.store.Payments().FindOpenByRequest(ctx, req.ID)
	switch {
	case err == nil:
		if in.TokenCode != "" && open.Status == models.PaymentPending {
			return nil, errs.New(errs.ValidationError, "a card payment is already in progress for request %s", req.ID)
		}
		return s.resultFor(ctx, open)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load open payment: %w", err)
	}

	if in.TokenCode != "" {
		tok, err := s.store.Tokens().FindByCode(ctx, in.TokenCode)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.New(errs.InvalidToken, "token not found")
		}
		if err != nil {
			return nil, fmt.Errorf("load token: %w", err)
		}
		if !tok.Usable(s.now()) {
			return nil, errs.New(errs.InvalidToken, "token is used or expired")
		}
		if tok.Value >= 1 {
			return s.redeem(ctx, req, tok)
		}
	}
	return s.charge(ctx, req)
}

func (s *PaymentService) redeem(ctx context.Context, req *models.Request, tok *models.Token) (*InitiateResult, error) {
	now := s.now().UTC()
	receipt := "token:" + tok.Code
	payment := &models.Payment{
		ID:               uuid.New(),
		RequesterID:      req.RequesterID,
		RequestID:        req.ID,
		Amount:           decimal.Zero,
		Currency:         s.pricing.Currency,
		Status:           models.PaymentSucceeded,
		ReceiptReference: &receipt,
		TokenID:          &tok.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ok, err := tx.Tokens().Redeem(ctx, tok.Code, req.RequesterID, now)
		if err != nil {
			return fmt.Errorf("redeem token: %w", err)
		}
		if !ok {
			return errs.New(errs.InvalidToken, "token is used or expired")
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errs.New(errs.ValidationError, "another payment is already open for request %s", req.ID)
			}
			return fmt.Errorf("create payment: %w", err)
		}
		linked, err := tx.Requests().LinkPayment(ctx, req.ID, payment.ID)
		if err != nil {
			return fmt.Errorf("link payment: %w", err)
		}
		if !linked {
			return errs.New(errs.ValidationError, "request %s already has a payment", req.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"request_id": req.ID, "payment_id": payment.ID}).Info("token redeemed")
	s.audit.Record(ctx, "payment.token_redeemed", "payment", payment.ID.String(), tok.Code)
	s.notifier.Notify(ctx, s.store, newRequestNotices(req)...)

	return &InitiateResult{PaymentID: payment.ID, ClientSecret: payments.ClientSecretTokenUsed, Status: payment.Status}, nil
}

func (s *PaymentService) charge(ctx context.Context, req *models.Request) (*InitiateResult, error) {
	now := s.now().UTC()
	payment := &models.Payment{
		ID:          uuid.New(),
		RequesterID: req.RequesterID,
		RequestID:   req.ID,
		Amount:      s.pricing.Price,
		Currency:    s.pricing.Currency,
		Status:      models.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Payments().Create(ctx, payment); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create payment: %w", err)
		}
		// Lost the race to a concurrent initiate; continue with the winner.
		winner, err := s.store.Payments().FindOpenByRequest(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("load open payment: %w", err)
		}
		return s.resultFor(ctx, winner)
	}
	return s.resultFor(ctx, payment)
}

func (s *PaymentService) resultFor(ctx context.Context, p *models.Payment) (*InitiateResult, error) {
	res := &InitiateResult{PaymentID: p.ID, Status: p.Status}
	switch {
	case p.TokenID != nil || p.Amount.IsZero():
		res.ClientSecret = payments.ClientSecretTokenUsed
	case p.Status == models.PaymentPending:
		secret, err := s.ensureIntent(ctx, p)
		if err != nil {
			return nil, err
		}
		res.ClientSecret = secret
	}
	return res, nil
}

func (s *PaymentService) ensureIntent(ctx context.Context, p *models.Payment) (string, error) {
	if p.IntentID != nil {
		secret, err := s.gateway.IntentSecret(ctx, *p.IntentID)
		if err != nil {
			return "", errs.Wrap(errs.ProcessorError, err, "payment processor unavailable")
		}
		return secret, nil
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.IntentParams{
		PaymentID: p.ID,
		RequestID: p.RequestID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	})
	if err != nil {
		s.log.WithError(err).WithField("payment_id", p.ID).Warn("payment intent creation failed")
		return "", errs.Wrap(errs.ProcessorError, err, "payment processor unavailable")
	}
	if err := s.store.Payments().SetIntent(ctx, p.ID, intent.ID, s.now().UTC()); err != nil {
		return "", fmt.Errorf("store intent: %w", err)
	}
	p.IntentID = &intent.ID
	return intent.ClientSecret, nil
}

func sameFulfillers(req *models.Request, ids []uuid.UUID) bool {
	if len(ids) != len(req.FulfillerIDs) {
		return false
	}
	want := make(map[uuid.UUID]int, len(ids))
	for _, id := range req.Fulfillers() {
		want[id]++
	}
	for _, id := range ids {
		if want[id] == 0 {
			return false
		}
		want[id]--
	}
	return true
}

func newRequestNotices(req *models.Request) []Notice {
	notices := make([]Notice, 0, len(req.FulfillerIDs))
	for _, id := range req.Fulfillers() {
		reqID := req.ID
		notices = append(notices, Notice{
			Type:        models.NotifyNewRequest,
			RecipientID: id,
			RequestID:   &reqID,
			Payload: map[string]interface{}{
				"request_id": req.ID.String(),
				"purpose":    string(req.Purpose),
				"deadline":   req.Deadline.Format(time.RFC3339),
			},
		})
	}
	return notices
}
