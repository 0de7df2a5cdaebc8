package services

import (
	"context"
	"testing"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/payments"
	"github.com/anjiri1684/letter_broker/repository/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateIntent(ctx context.Context, p payments.IntentParams) (*payments.Intent, error) {
	args := m.Called(ctx, p)
	intent, _ := args.Get(0).(*payments.Intent)
	return intent, args.Error(1)
}

func (m *MockGateway) IntentSecret(ctx context.Context, intentID string) (string, error) {
	args := m.Called(ctx, intentID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) Transfer(ctx context.Context, p payments.TransferParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, p payments.RefundParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) PayeeReady(ctx context.Context, accountID string) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

var testNow = time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fixture struct {
	store    *memory.Store
	gateway  *MockGateway
	notifier *Notifier
	audit    *StoreAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	store := memory.New()
	notifier := NewNotifier(log)
	notifier.now = fixedClock
	audit := NewStoreAuditor(store, log)
	audit.now = fixedClock
	return &fixture{store: store, gateway: &MockGateway{}, notifier: notifier, audit: audit}
}

func (f *fixture) requestSvc(payouts PayoutTrigger) *RequestService {
	log, _ := test.NewNullLogger()
	s := NewRequestService(f.store, f.notifier, f.audit, payouts, log)
	s.now = fixedClock
	return s
}

func (f *fixture) paymentSvc() *PaymentService {
	log, _ := test.NewNullLogger()
	s := NewPaymentService(f.store, f.gateway, f.notifier, f.audit, Pricing{Price: decimal.RequireFromString("30.00"), Currency: "USD"}, log)
	s.now = fixedClock
	return s
}

func (f *fixture) settlementSvc() *SettlementService {
	log, _ := test.NewNullLogger()
	s := NewSettlementService(f.store, f.gateway, f.notifier, f.audit, decimal.RequireFromString("0.70"), log)
	s.now = fixedClock
	return s
}

func (f *fixture) refundSvc() *RefundService {
	log, _ := test.NewNullLogger()
	s := NewRefundService(f.store, f.gateway, f.notifier, f.audit, log)
	s.now = fixedClock
	return s
}

func (f *fixture) seedRequest(t *testing.T, status models.RequestStatus, fulfillers ...uuid.UUID) *models.Request {
	t.Helper()
	if len(fulfillers) == 0 {
		fulfillers = []uuid.UUID{uuid.New()}
	}
	ids := make([]string, 0, len(fulfillers))
	for _, id := range fulfillers {
		ids = append(ids, id.String())
	}
	req := &models.Request{
		RequesterID:  uuid.New(),
		FulfillerIDs: ids,
		Purpose:      models.PurposeScholarship,
		Status:       status,
		Deadline:     testNow.Add(30 * 24 * time.Hour),
		CreatedAt:    testNow.Add(-time.Hour),
	}
	require.NoError(t, f.store.Requests().Create(context.Background(), req))
	return req
}

// seedPaid creates a succeeded card payment linked to req.
func (f *fixture) seedPaid(t *testing.T, req *models.Request, amount string) *models.Payment {
	t.Helper()
	ctx := context.Background()
	intent := "pi_" + uuid.NewString()
	p := &models.Payment{
		RequesterID: req.RequesterID,
		RequestID:   req.ID,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "usd",
		Status:      models.PaymentSucceeded,
		IntentID:    &intent,
		CreatedAt:   testNow.Add(-time.Hour),
	}
	require.NoError(t, f.store.Payments().Create(ctx, p))
	_, err := f.store.Requests().LinkPayment(ctx, req.ID, p.ID)
	require.NoError(t, err)
	req.PaymentID = &p.ID
	return p
}

func (f *fixture) queued(typ models.NotificationType) []models.NotificationQueueItem {
	var out []models.NotificationQueueItem
	for _, n := range f.store.AllNotifications() {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func recipients(items []models.NotificationQueueItem) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(items))
	for _, n := range items {
		if n.RecipientID != nil {
			out = append(out, *n.RecipientID)
		}
	}
	return out
}
