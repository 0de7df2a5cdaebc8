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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) seedPayee(fulfillerID uuid.UUID, account string) {
	f.store.PutPayee(models.PayeeAccount{FulfillerID: fulfillerID, StripeAccountID: account})
}

func TestPayoutSplitsFulfillerShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	req := f.seedRequest(t, models.RequestCompleted, a, b)
	payment := f.seedPaid(t, req, "30.00")
	f.seedPayee(a, "acct_a")
	f.seedPayee(b, "acct_b")

	f.gateway.On("PayeeReady", mock.Anything, mock.Anything).Return(true, nil)
	f.gateway.On("Transfer", mock.Anything, mock.MatchedBy(func(p payments.TransferParams) bool {
		return p.Destination == "acct_a" && p.Amount.StringFixed(2) == "10.50"
	})).Return("tr_a", nil).Once()
	f.gateway.On("Transfer", mock.Anything, mock.MatchedBy(func(p payments.TransferParams) bool {
		return p.Destination == "acct_b"
	})).Return("tr_b", nil).Once()

	svc := f.settlementSvc()
	payout, err := svc.Payout(ctx, a, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, payout.Status)
	assert.Equal(t, "tr_a", *payout.TransferID)

	_, err = svc.Payout(ctx, b, payment.ID)
	require.NoError(t, err)

	total := decimal.Zero
	for _, p := range f.store.AllPayouts() {
		total = total.Add(p.Amount)
	}
	assert.True(t, total.LessThanOrEqual(payment.Amount))
	assert.Equal(t, "21.00", total.StringFixed(2))

	_, err = svc.Payout(ctx, a, payment.ID)
	assert.True(t, errors.Is(err, errs.ErrAlreadyPaid))
	f.gateway.AssertExpectations(t)
}

func TestPayoutGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingPayment", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.settlementSvc().Payout(ctx, uuid.New(), uuid.New())
		assert.Equal(t, errs.NotFound, errs.KindOf(err))
	})

	t.Run("PendingPayment", func(t *testing.T) {
		f := newFixture(t)
		a := uuid.New()
		req := f.seedRequest(t, models.RequestCompleted, a)
		p := &models.Payment{RequesterID: req.RequesterID, RequestID: req.ID, Amount: decimal.NewFromInt(30), Currency: "usd", Status: models.PaymentPending}
		require.NoError(t, f.store.Payments().Create(ctx, p))

		_, err := f.settlementSvc().Payout(ctx, a, p.ID)
		assert.Equal(t, errs.NotEligible, errs.KindOf(err))
	})

	t.Run("NotAssigned", func(t *testing.T) {
		f := newFixture(t)
		req := f.seedRequest(t, models.RequestCompleted)
		payment := f.seedPaid(t, req, "30.00")

		_, err := f.settlementSvc().Payout(ctx, uuid.New(), payment.ID)
		assert.Equal(t, errs.NotAssigned, errs.KindOf(err))
	})

	t.Run("NoPayeeAccount", func(t *testing.T) {
		f := newFixture(t)
		a := uuid.New()
		req := f.seedRequest(t, models.RequestCompleted, a)
		payment := f.seedPaid(t, req, "30.00")

		_, err := f.settlementSvc().Payout(ctx, a, payment.ID)
		assert.Equal(t, errs.PayeeNotConfigured, errs.KindOf(err))
		assert.Empty(t, f.store.AllPayouts())
	})

	t.Run("PayoutsDisabled", func(t *testing.T) {
		f := newFixture(t)
		a := uuid.New()
		req := f.seedRequest(t, models.RequestCompleted, a)
		payment := f.seedPaid(t, req, "30.00")
		f.seedPayee(a, "acct_off")
		f.gateway.On("PayeeReady", mock.Anything, "acct_off").Return(false, nil)

		_, err := f.settlementSvc().Payout(ctx, a, payment.ID)
		assert.Equal(t, errs.PayeeNotConfigured, errs.KindOf(err))
	})

	t.Run("TokenFundedPayment", func(t *testing.T) {
		f := newFixture(t)
		a := uuid.New()
		req := f.seedRequest(t, models.RequestCompleted, a)
		payment := f.seedPaid(t, req, "0")

		_, err := f.settlementSvc().Payout(ctx, a, payment.ID)
		assert.Equal(t, errs.NotEligible, errs.KindOf(err))
	})
}

func TestConcurrentPayoutTriggers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := uuid.New()
	req := f.seedRequest(t, models.RequestCompleted, a)
	payment := f.seedPaid(t, req, "30.00")
	f.seedPayee(a, "acct_a")
	f.gateway.On("PayeeReady", mock.Anything, "acct_a").Return(true, nil)
	f.gateway.On("Transfer", mock.Anything, mock.Anything).Return("tr_a", nil)

	svc := f.settlementSvc()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Payout(ctx, a, payment.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			assert.Equal(t, errs.AlreadyPaid, errs.KindOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, f.store.AllPayouts(), 1)
	f.gateway.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestTransferFailureLeavesPayoutPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := uuid.New()
	req := f.seedRequest(t, models.RequestCompleted, a)
	payment := f.seedPaid(t, req, "30.00")
	f.seedPayee(a, "acct_a")
	f.gateway.On("PayeeReady", mock.Anything, "acct_a").Return(true, nil)
	f.gateway.On("Transfer", mock.Anything, mock.Anything).Return("", errors.New("balance_insufficient")).Once()
	f.gateway.On("Transfer", mock.Anything, mock.Anything).Return("tr_retry", nil).Once()

	svc := f.settlementSvc()
	payout, err := svc.Payout(ctx, a, payment.ID)
	require.Error(t, err)
	assert.Equal(t, errs.ProcessorError, errs.KindOf(err))
	require.NotNil(t, payout)

	stored := f.store.AllPayouts()
	require.Len(t, stored, 1)
	assert.Equal(t, models.PayoutPending, stored[0].Status)
	assert.Equal(t, 1, stored[0].Attempts)
	assert.Contains(t, *stored[0].FailureReason, "balance_insufficient")

	svc.now = func() time.Time { return testNow.Add(time.Hour) }
	sum, err := svc.RetryPending(ctx, 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Checked: 1, Initiated: 1}, sum)

	stored = f.store.AllPayouts()
	assert.Equal(t, models.PayoutProcessing, stored[0].Status)
	assert.Equal(t, "tr_retry", *stored[0].TransferID)
}

func TestPayoutForRequestSkipsPaidFulfillers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	req := f.seedRequest(t, models.RequestCompleted, a, b)
	f.seedPaid(t, req, "30.00")
	f.seedPayee(a, "acct_a")
	f.seedPayee(b, "acct_b")
	f.gateway.On("PayeeReady", mock.Anything, mock.Anything).Return(true, nil)
	f.gateway.On("Transfer", mock.Anything, mock.Anything).Return("tr_1", nil).Once()
	f.gateway.On("Transfer", mock.Anything, mock.Anything).Return("tr_2", nil).Once()

	svc := f.settlementSvc()
	require.NoError(t, svc.PayoutForRequest(ctx, req))
	require.NoError(t, svc.PayoutForRequest(ctx, req))
	assert.Len(t, f.store.AllPayouts(), 2)
	f.gateway.AssertNumberOfCalls(t, "Transfer", 2)
}

func TestPayoutForRequestWithoutPayment(t *testing.T) {
	f := newFixture(t)
	req := f.seedRequest(t, models.RequestCompleted)
	assert.NoError(t, f.settlementSvc().PayoutForRequest(context.Background(), req))
}
