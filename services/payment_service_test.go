package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/payments"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func initiateFor(req *models.Request, token string) InitiateInput {
	return InitiateInput{
		RequesterID:  req.RequesterID,
		RequestID:    req.ID,
		FulfillerIDs: req.Fulfillers(),
		TokenCode:    token,
	}
}

func TestInitiateWithFreeToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	req := f.seedRequest(t, models.RequestPendingAcceptance, a, b)
	f.store.PutToken(models.Token{Code: "FREE1", Value: 1, ExpiryDate: testNow.Add(48 * time.Hour)})

	res, err := f.paymentSvc().Initiate(ctx, initiateFor(req, " free1 "))
	require.NoError(t, err)
	assert.Equal(t, payments.ClientSecretTokenUsed, res.ClientSecret)
	assert.Equal(t, models.PaymentSucceeded, res.Status)

	payment, err := f.store.Payments().FindByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.True(t, payment.Amount.IsZero())
	require.NotNil(t, payment.TokenID)

	tok, _ := f.store.Token("FREE1")
	require.NotNil(t, tok.UsedBy)
	assert.Equal(t, req.RequesterID, *tok.UsedBy)

	stored, _ := f.store.Requests().FindByID(ctx, req.ID)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, res.PaymentID, *stored.PaymentID)

	assert.ElementsMatch(t, []uuid.UUID{a, b}, recipients(f.queued(models.NotifyNewRequest)))
	f.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)

	again, err := f.paymentSvc().Initiate(ctx, initiateFor(req, "FREE1"))
	require.NoError(t, err, "a repeat call short-circuits on the linked payment")
	assert.Equal(t, res.PaymentID, again.PaymentID)
	assert.Len(t, f.queued(models.NotifyNewRequest), 2)
}

func TestInitiateInvalidToken(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		token models.Token
		code  string
	}{
		{"Unknown", models.Token{Code: "OTHER", Value: 1, ExpiryDate: testNow}, "NOPE"},
		{"Expired", models.Token{Code: "OLD", Value: 1, ExpiryDate: testNow.Add(-48 * time.Hour)}, "OLD"},
		{"Used", models.Token{Code: "USED", Value: 1, ExpiryDate: testNow, UsedBy: ptrUUID(uuid.New())}, "USED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.seedRequest(t, models.RequestPendingAcceptance)
			f.store.PutToken(tt.token)

			_, err := f.paymentSvc().Initiate(ctx, initiateFor(req, tt.code))
			assert.Equal(t, errs.InvalidToken, errs.KindOf(err))
			assert.Empty(t, f.store.AllPayments())
		})
	}
}

func TestInitiateTokenExpiringTodayIsUsable(t *testing.T) {
	f := newFixture(t)
	req := f.seedRequest(t, models.RequestPendingAcceptance)
	f.store.PutToken(models.Token{Code: "TODAY", Value: 1, ExpiryDate: models.StartOfDay(testNow)})

	res, err := f.paymentSvc().Initiate(context.Background(), initiateFor(req, "TODAY"))
	require.NoError(t, err)
	assert.Equal(t, payments.ClientSecretTokenUsed, res.ClientSecret)
}

func TestConcurrentTokenRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutToken(models.Token{Code: "ONCE", Value: 1, ExpiryDate: testNow.Add(24 * time.Hour)})

	const callers = 8
	reqs := make([]*models.Request, callers)
	for i := range reqs {
		reqs[i] = f.seedRequest(t, models.RequestPendingAcceptance)
	}

	svc := f.paymentSvc()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(req *models.Request) {
			defer wg.Done()
			_, err := svc.Initiate(ctx, initiateFor(req, "ONCE"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				assert.Equal(t, errs.InvalidToken, errs.KindOf(err))
			}
		}(reqs[i])
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, f.store.AllPayments(), 1)
}

func TestInitiateCardPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, models.RequestPendingAcceptance)

	f.gateway.On("CreateIntent", mock.Anything, mock.MatchedBy(func(p payments.IntentParams) bool {
		return p.RequestID == req.ID && p.Amount.StringFixed(2) == "30.00" && p.Currency == "usd"
	})).Return(&payments.Intent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil).Once()
	f.gateway.On("IntentSecret", mock.Anything, "pi_123").Return("pi_123_secret", nil).Once()

	svc := f.paymentSvc()
	res, err := svc.Initiate(ctx, initiateFor(req, ""))
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret", res.ClientSecret)
	assert.Equal(t, models.PaymentPending, res.Status)

	payment, err := f.store.Payments().FindByIntentID(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, res.PaymentID, payment.ID)

	again, err := svc.Initiate(ctx, initiateFor(req, ""))
	require.NoError(t, err)
	assert.Equal(t, res.PaymentID, again.PaymentID)
	assert.Len(t, f.store.AllPayments(), 1)
	assert.Empty(t, f.queued(models.NotifyNewRequest), "fulfillers are told once the webhook confirms payment")

	_, err = svc.Initiate(ctx, initiateFor(req, "FREE1"))
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))

	f.gateway.AssertExpectations(t)
}

func TestInitiateProcessorUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, models.RequestPendingAcceptance)

	f.gateway.On("CreateIntent", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	f.gateway.On("CreateIntent", mock.Anything, mock.Anything).Return(&payments.Intent{ID: "pi_9", ClientSecret: "s9"}, nil).Once()

	svc := f.paymentSvc()
	_, err := svc.Initiate(ctx, initiateFor(req, ""))
	require.Error(t, err)
	assert.Equal(t, errs.ProcessorError, errs.KindOf(err))

	all := f.store.AllPayments()
	require.Len(t, all, 1)
	assert.Equal(t, models.PaymentPending, all[0].Status)
	assert.Nil(t, all[0].IntentID)

	res, err := svc.Initiate(ctx, initiateFor(req, ""))
	require.NoError(t, err)
	assert.Equal(t, all[0].ID, res.PaymentID, "the retry reuses the pending payment")
	assert.Equal(t, "s9", res.ClientSecret)
}

func TestInitiateZeroValueTokenChargesCard(t *testing.T) {
	f := newFixture(t)
	req := f.seedRequest(t, models.RequestPendingAcceptance)
	f.store.PutToken(models.Token{Code: "ZERO", Value: 0, ExpiryDate: testNow})
	f.gateway.On("CreateIntent", mock.Anything, mock.Anything).Return(&payments.Intent{ID: "pi_z", ClientSecret: "sz"}, nil)

	res, err := f.paymentSvc().Initiate(context.Background(), initiateFor(req, "ZERO"))
	require.NoError(t, err)
	assert.Equal(t, "sz", res.ClientSecret)

	tok, _ := f.store.Token("ZERO")
	assert.Nil(t, tok.UsedBy)
}

func TestInitiateValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingRequest", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.paymentSvc().Initiate(ctx, InitiateInput{RequesterID: uuid.New(), RequestID: uuid.New()})
		assert.Equal(t, errs.NotFound, errs.KindOf(err))
	})

	t.Run("OtherRequester", func(t *testing.T) {
		f := newFixture(t)
		req := f.seedRequest(t, models.RequestPendingAcceptance)
		in := initiateFor(req, "")
		in.RequesterID = uuid.New()
		_, err := f.paymentSvc().Initiate(ctx, in)
		assert.Equal(t, errs.Forbidden, errs.KindOf(err))
	})

	t.Run("FulfillerMismatch", func(t *testing.T) {
		f := newFixture(t)
		req := f.seedRequest(t, models.RequestPendingAcceptance)
		in := initiateFor(req, "")
		in.FulfillerIDs = []uuid.UUID{uuid.New()}
		_, err := f.paymentSvc().Initiate(ctx, in)
		assert.Equal(t, errs.ValidationError, errs.KindOf(err))
	})

	t.Run("TerminalRequest", func(t *testing.T) {
		f := newFixture(t)
		req := f.seedRequest(t, models.RequestCancelled)
		_, err := f.paymentSvc().Initiate(ctx, initiateFor(req, ""))
		assert.Equal(t, errs.NotEligible, errs.KindOf(err))
	})
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }
