package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/notifications"
	"github.com/anjiri1684/letter_broker/payments"
	"github.com/anjiri1684/letter_broker/repository/memory"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *memory.Store
	enforcer *Enforcer
	refunds  *services.RefundService
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, _ := test.NewNullLogger()
	store := memory.New()
	notifier := services.NewNotifier(log)
	audit := services.NewStoreAuditor(store, log)
	gateway := payments.NewSandboxGateway(log)
	settlement := services.NewSettlementService(store, gateway, notifier, audit, decimal.RequireFromString("0.70"), log)
	refunds := services.NewRefundService(store, gateway, notifier, audit, log)

	now := time.Now().UTC()
	e := NewEnforcer(store, notifier, audit, settlement, refunds, log)
	e.now = func() time.Time { return now }
	return &harness{store: store, enforcer: e, refunds: refunds, now: now}
}

func (h *harness) request(t *testing.T, status models.RequestStatus, age time.Duration, deadline time.Time, fulfillers ...uuid.UUID) *models.Request {
	t.Helper()
	ids := make([]string, 0, len(fulfillers))
	for _, f := range fulfillers {
		ids = append(ids, f.String())
	}
	req := &models.Request{
		RequesterID:  uuid.New(),
		FulfillerIDs: ids,
		Purpose:      models.PurposeJob,
		Status:       status,
		Deadline:     deadline,
		CreatedAt:    h.now.Add(-age),
	}
	require.NoError(t, h.store.Requests().Create(context.Background(), req))
	return req
}

func (h *harness) paid(t *testing.T, req *models.Request, amount string) *models.Payment {
	t.Helper()
	intent := "pi_" + uuid.NewString()
	p := &models.Payment{
		RequesterID: req.RequesterID,
		RequestID:   req.ID,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "usd",
		Status:      models.PaymentSucceeded,
		IntentID:    &intent,
	}
	require.NoError(t, h.store.Payments().Create(context.Background(), p))
	_, err := h.store.Requests().LinkPayment(context.Background(), req.ID, p.ID)
	require.NoError(t, err)
	return p
}

func (h *harness) notices(typ models.NotificationType, requestID uuid.UUID) []models.NotificationQueueItem {
	var out []models.NotificationQueueItem
	for _, n := range h.store.AllNotifications() {
		if n.Type == typ && n.RequestID != nil && *n.RequestID == requestID {
			out = append(out, n)
		}
	}
	return out
}

func day(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestAutoCancelQueuesRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.request(t, models.RequestPendingAcceptance, day(15), h.now.Add(day(30)), uuid.New())
	payment := h.paid(t, req, "30.00")

	sum, err := h.enforcer.AutoCancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoCancelSummary{Checked: 1, Cancelled: 1, RefundsQueued: 1}, sum)

	stored, err := h.store.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAutoCancelled, stored.Status)

	refunds := h.store.AllRefunds()
	require.Len(t, refunds, 1)
	assert.Equal(t, models.RefundQueued, refunds[0].Status)
	assert.Equal(t, autoCancelReason, refunds[0].Reason)
	assert.True(t, refunds[0].Amount.Equal(decimal.RequireFromString("30")))

	p, err := h.store.Payments().FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, p.Status)

	updates := h.notices(models.NotifyRequesterUpdate, req.ID)
	require.Len(t, updates, 1)
	assert.Equal(t, req.RequesterID, *updates[0].RecipientID)
	assert.Equal(t, "30.00", updates[0].Payload["refund_amount"])

	// Second run finds nothing left to do.
	sum, err = h.enforcer.AutoCancel(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Cancelled)
	assert.Len(t, h.store.AllRefunds(), 1)

	settled, err := h.enforcer.ProcessRefunds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled.Succeeded)
	assert.Equal(t, models.RefundSucceeded, h.store.AllRefunds()[0].Status)
}

func TestAutoCancelSkipsYoungAndTokenFunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	young := h.request(t, models.RequestPendingAcceptance, day(13), h.now.Add(day(30)), uuid.New())
	free := h.request(t, models.RequestPendingAcceptance, day(20), h.now.Add(day(30)), uuid.New())
	h.paid(t, free, "0")
	accepted := h.request(t, models.RequestAccepted, day(20), h.now.Add(day(30)), uuid.New())

	sum, err := h.enforcer.AutoCancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoCancelSummary{Checked: 1, Cancelled: 1}, sum)
	assert.Empty(t, h.store.AllRefunds())

	for id, want := range map[uuid.UUID]models.RequestStatus{
		young.ID:    models.RequestPendingAcceptance,
		free.ID:     models.RequestAutoCancelled,
		accepted.ID: models.RequestAccepted,
	} {
		r, err := h.store.Requests().FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, r.Status)
	}
}

func TestSendRemindersOncePerDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	req := h.request(t, models.RequestPendingAcceptance, day(8), h.now.Add(day(30)), a, b)
	h.request(t, models.RequestPendingAcceptance, day(3), h.now.Add(day(30)), uuid.New())
	h.request(t, models.RequestPendingAcceptance, day(15), h.now.Add(day(30)), uuid.New())

	sum, err := h.enforcer.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReminderSummary{Checked: 1, Reminded: 1}, sum)

	reminders := h.notices(models.NotifyReminder, req.ID)
	require.Len(t, reminders, 2)
	assert.EqualValues(t, 8, reminders[0].Payload["days_pending"])
	assert.Len(t, h.notices(models.NotifyRequesterUpdate, req.ID), 1)

	sum, err = h.enforcer.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReminderSummary{Checked: 1, Skipped: 1}, sum)
	assert.Len(t, h.notices(models.NotifyReminder, req.ID), 2)
}

func TestDeadlineAlertsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := uuid.New()
	soon := h.request(t, models.RequestInProgress, day(2), h.now.Add(day(2)), f)
	h.request(t, models.RequestAccepted, day(2), h.now.Add(day(10)), uuid.New())
	h.request(t, models.RequestCompleted, day(2), h.now.Add(day(1)), uuid.New())

	sum, err := h.enforcer.SendDeadlineAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeadlineSummary{Checked: 1, Alerted: 1}, sum)
	alerts := h.notices(models.NotifyDeadlineAlert, soon.ID)
	require.Len(t, alerts, 2)

	sum, err = h.enforcer.SendDeadlineAlerts(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Alerted)
	assert.Len(t, h.notices(models.NotifyDeadlineAlert, soon.ID), 2)
}

func TestCleanupKeepsOpenQueueItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.now.Add(-day(40))
	recipient := uuid.New()

	for _, status := range []models.NotificationStatus{models.NotificationSent, models.NotificationFailed, models.NotificationPending, models.NotificationProcessing} {
		require.NoError(t, h.store.Notifications().Enqueue(ctx, &models.NotificationQueueItem{
			RecipientID:  &recipient,
			Type:         models.NotifyReminder,
			Channels:     []string{"email"},
			Status:       status,
			ScheduledFor: old,
			CreatedAt:    old,
			UpdatedAt:    old,
		}))
	}
	h.store.PutToken(models.Token{Code: "OLD", Value: 1, ExpiryDate: h.now.Add(-day(2))})
	h.store.PutToken(models.Token{Code: "TODAY", Value: 1, ExpiryDate: h.now})

	sum, err := h.enforcer.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.Notifications)
	assert.EqualValues(t, 1, sum.Tokens)

	left := h.store.AllNotifications()
	require.Len(t, left, 2)
	for _, n := range left {
		assert.Contains(t, []models.NotificationStatus{models.NotificationPending, models.NotificationProcessing}, n.Status)
	}
	_, ok := h.store.Token("TODAY")
	assert.True(t, ok)
}

func TestReleaseStuckNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	recipient := uuid.New()
	stuckAt := h.now.Add(-time.Hour)
	item := &models.NotificationQueueItem{
		RecipientID:  &recipient,
		Type:         models.NotifyReminder,
		Channels:     []string{"email"},
		Status:       models.NotificationProcessing,
		ScheduledFor: stuckAt,
		CreatedAt:    stuckAt,
		UpdatedAt:    stuckAt,
	}
	require.NoError(t, h.store.Notifications().Enqueue(ctx, item))

	sum, err := h.enforcer.ReleaseStuckNotifications(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.Released)
	assert.Equal(t, models.NotificationPending, h.store.AllNotifications()[0].Status)
}

func TestScheduleRegistersEverySweep(t *testing.T) {
	h := newHarness(t)
	log, _ := test.NewNullLogger()
	c := cron.New()
	processor := notificationsStub{}
	require.NoError(t, Schedule(c, h.enforcer, processor, log))
	assert.Len(t, c.Entries(), 8)
}

type notificationsStub struct{}

func (notificationsStub) Drain(ctx context.Context, batchSize int) (notifications.DrainResult, error) {
	return notifications.DrainResult{}, nil
}
