package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository/memory"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var drainNow = time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)

type fakeChannel struct {
	name  models.Channel
	err   error
	panic bool

	mu   sync.Mutex
	sent []Message
}

func (c *fakeChannel) Name() models.Channel { return c.name }

func (c *fakeChannel) Deliver(ctx context.Context, msg Message) error {
	if c.panic {
		panic("boom")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func newProcessor(store *memory.Store, channels ...Channel) *Processor {
	log, _ := test.NewNullLogger()
	p := NewProcessor(store, log, channels...)
	p.now = func() time.Time { return drainNow }
	return p
}

func enqueue(t *testing.T, store *memory.Store, recipient uuid.UUID, typ models.NotificationType, channels ...models.Channel) uuid.UUID {
	t.Helper()
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, string(c))
	}
	item := &models.NotificationQueueItem{
		RecipientID:  &recipient,
		Type:         typ,
		Channels:     names,
		Payload:      map[string]interface{}{"request_id": "r-1", "purpose": "school", "deadline": "2026-05-01"},
		ScheduledFor: drainNow.Add(-time.Minute),
		CreatedAt:    drainNow.Add(-time.Minute),
	}
	require.NoError(t, store.Notifications().Enqueue(context.Background(), item))
	return item.ID
}

func queueItem(t *testing.T, store *memory.Store, id uuid.UUID) models.NotificationQueueItem {
	t.Helper()
	for _, n := range store.AllNotifications() {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("notification %s not found", id)
	return models.NotificationQueueItem{}
}

func TestDrainDeliversAndMarksSent(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	store.PutContact(models.Contact{UserID: user, FullName: "Ada Lovelace", Email: "ada@example.com"})
	email := &fakeChannel{name: models.ChannelEmail}
	id := enqueue(t, store, user, models.NotifyNewRequest, models.ChannelEmail)

	res, err := newProcessor(store, email).Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Selected: 1, Sent: 1}, res)

	n := queueItem(t, store, id)
	assert.Equal(t, models.NotificationSent, n.Status)
	assert.Equal(t, 1, n.Attempts)
	require.NotNil(t, n.SentAt)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "ada@example.com", email.sent[0].Recipient.Email)
	assert.Equal(t, "New recommendation letter request", email.sent[0].Subject)
	assert.Contains(t, email.sent[0].Body, "school")
}

func TestDrainBacksOffThenFails(t *testing.T) {
	store := memory.New()
	email := &fakeChannel{name: models.ChannelEmail, err: errors.New("smtp down")}
	id := enqueue(t, store, uuid.New(), models.NotifyReminder, models.ChannelEmail)
	p := newProcessor(store, email)
	ctx := context.Background()
	current := drainNow

	for attempt := 1; attempt < models.MaxNotificationAttempts; attempt++ {
		res, err := p.Drain(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Retrying)

		n := queueItem(t, store, id)
		assert.Equal(t, models.NotificationPending, n.Status)
		assert.Equal(t, attempt, n.Attempts)
		require.NotNil(t, n.NextRetry)
		assert.Equal(t, current.Add(Backoff(attempt)), *n.NextRetry)
		assert.Equal(t, *n.NextRetry, n.ScheduledFor)
		assert.Contains(t, *n.LastError, "smtp down")

		// Not due yet.
		res, err = p.Drain(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, res.Selected)

		current = n.ScheduledFor
		p.now = func() time.Time { return current }
	}

	res, err := p.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	n := queueItem(t, store, id)
	assert.Equal(t, models.NotificationFailed, n.Status)
	assert.Equal(t, models.MaxNotificationAttempts, n.Attempts)

	res, err = p.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Selected, "failed items are never picked up again")
}

func TestBackoffDoubles(t *testing.T) {
	assert.Equal(t, 2*time.Minute, Backoff(1))
	assert.Equal(t, 4*time.Minute, Backoff(2))
	assert.Equal(t, 8*time.Minute, Backoff(3))
}

func TestDrainIsolatesPanics(t *testing.T) {
	store := memory.New()
	bad := enqueue(t, store, uuid.New(), models.NotifyReminder, models.ChannelSMS)
	good := enqueue(t, store, uuid.New(), models.NotifyReminder, models.ChannelEmail)

	res, err := newProcessor(store,
		&fakeChannel{name: models.ChannelSMS, panic: true},
		&fakeChannel{name: models.ChannelEmail},
	).Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Retrying)
	assert.Contains(t, *queueItem(t, store, bad).LastError, "panic")
	assert.Equal(t, models.NotificationSent, queueItem(t, store, good).Status)
}

func TestDrainRetriesOnlyTheChannelsThatFailed(t *testing.T) {
	store := memory.New()
	user := uuid.New()
	ctx := context.Background()
	id := enqueue(t, store, user, models.NotifyDeadlineAlert, models.ChannelEmail, models.ChannelInApp)

	email := &fakeChannel{name: models.ChannelEmail, err: errors.New("brevo 503")}
	p := newProcessor(store, email, NewInAppChannel(store.InApp(), nil))

	res, err := p.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Selected: 1, Retrying: 1}, res)

	n := queueItem(t, store, id)
	assert.Equal(t, models.NotificationPending, n.Status)
	assert.Equal(t, 1, n.Attempts)
	require.NotNil(t, n.NextRetry)
	assert.Equal(t, drainNow.Add(Backoff(1)), *n.NextRetry)
	require.NotNil(t, n.LastError)
	assert.Contains(t, *n.LastError, "brevo 503")
	assert.Equal(t, []string{string(models.ChannelInApp)}, []string(n.DeliveredChannels))

	email.mu.Lock()
	email.err = nil
	email.mu.Unlock()
	p.now = func() time.Time { return n.ScheduledFor }

	res, err = p.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, models.NotificationSent, queueItem(t, store, id).Status)
	assert.Len(t, email.sent, 1)

	inbox, err := store.InApp().ListForUser(ctx, user, 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1, "the in-app channel is not repeated on retry")
	assert.Equal(t, "Recommendation deadline approaching", inbox[0].Title)
}

func TestDrainFailsWhenOneChannelKeepsFailing(t *testing.T) {
	store := memory.New()
	id := enqueue(t, store, uuid.New(), models.NotifyReminder, models.ChannelEmail, models.ChannelInApp)
	p := newProcessor(store, &fakeChannel{name: models.ChannelEmail, err: errors.New("smtp down")}, &fakeChannel{name: models.ChannelInApp})
	ctx := context.Background()

	for i := 0; i < models.MaxNotificationAttempts; i++ {
		_, err := p.Drain(ctx, 10)
		require.NoError(t, err)
		n := queueItem(t, store, id)
		p.now = func() time.Time { return n.ScheduledFor.Add(time.Minute) }
	}

	n := queueItem(t, store, id)
	assert.Equal(t, models.NotificationFailed, n.Status)
	assert.Equal(t, models.MaxNotificationAttempts, n.Attempts)
	assert.Equal(t, []string{string(models.ChannelInApp)}, []string(n.DeliveredChannels))
}

func TestDrainUnregisteredChannelIsAFailure(t *testing.T) {
	store := memory.New()
	id := enqueue(t, store, uuid.New(), models.NotifyReminder, models.ChannelSMS)

	res, err := newProcessor(store, &fakeChannel{name: models.ChannelEmail}).Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)
	assert.Contains(t, *queueItem(t, store, id).LastError, errs.ErrChannelNotConfigured.Error())
}

func TestConfiguredSkipsNoopChannels(t *testing.T) {
	p := newProcessor(memory.New(),
		NewNoopChannel(models.ChannelSMS),
		&fakeChannel{name: models.ChannelEmail},
		NewInAppChannel(nil, nil),
	)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelInApp}, p.Configured())
}

func TestDrainSkipsClaimedItems(t *testing.T) {
	store := memory.New()
	id := enqueue(t, store, uuid.New(), models.NotifyReminder, models.ChannelEmail)
	claimed, err := store.Notifications().Claim(context.Background(), id, drainNow)
	require.NoError(t, err)
	require.True(t, claimed)

	res, err := newProcessor(store, &fakeChannel{name: models.ChannelEmail}).Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, res.Selected)
	assert.Equal(t, models.NotificationProcessing, queueItem(t, store, id).Status)
}

func TestDrainRespectsBatchSize(t *testing.T) {
	store := memory.New()
	for i := 0; i < 5; i++ {
		enqueue(t, store, uuid.New(), models.NotifyReminder, models.ChannelEmail)
	}
	res, err := newProcessor(store, &fakeChannel{name: models.ChannelEmail}).Drain(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
}

func TestNoopChannelIsNotConfigured(t *testing.T) {
	err := NewNoopChannel(models.ChannelSMS).Deliver(context.Background(), Message{})
	assert.ErrorIs(t, err, errs.ErrChannelNotConfigured)
}

func TestEmailChannelPostsToBrevo(t *testing.T) {
	var got brevoPayload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/smtp/email", r.URL.Path)
		apiKey = r.Header.Get("api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	ch := NewEmailChannel(EmailConfig{APIKey: "key-1", SenderEmail: "noreply@letters.test", SenderName: "Letters", BaseURL: srv.URL}, log)
	err := ch.Deliver(context.Background(), Message{
		Recipient: models.Contact{Email: "grace@example.com"},
		Subject:   "Hello",
		Body:      "a < b",
	})
	require.NoError(t, err)
	assert.Equal(t, "key-1", apiKey)
	assert.Equal(t, "Hello", got.Subject)
	assert.Equal(t, "grace", got.To[0]["name"])
	assert.Contains(t, got.HTMLContent, "a &lt; b")
}

func TestEmailChannelReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_parameter"}`))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	ch := NewEmailChannel(EmailConfig{APIKey: "k", SenderEmail: "a@b.c", BaseURL: srv.URL}, log)
	err := ch.Deliver(context.Background(), Message{Recipient: models.Contact{Email: "x@y.z"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	err = ch.Deliver(context.Background(), Message{Recipient: models.Contact{Email: "not-an-address"}})
	assert.ErrorContains(t, err, "invalid recipient email")
}

func TestWhatsAppChannelSendsText(t *testing.T) {
	var got whatsAppPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/phone-1/messages", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	ch := NewWhatsAppChannel(WhatsAppConfig{Token: "tok", PhoneID: "phone-1", BaseURL: srv.URL}, log)
	require.NoError(t, ch.Deliver(context.Background(), Message{
		Recipient: models.Contact{Phone: "+254700000001"},
		Subject:   "Reminder",
		Body:      "please respond",
	}))
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "254700000001", got.To)
	assert.Equal(t, "Reminder: please respond", got.Text.Body)
}

func TestSMSChannelFallsBackToNoop(t *testing.T) {
	log, _ := test.NewNullLogger()
	for _, cfg := range []SMSConfig{{}, {Provider: "kavenegar"}, {Provider: "twilio", APIKey: "x"}} {
		ch := NewSMSChannel(cfg, log)
		assert.ErrorIs(t, ch.Deliver(context.Background(), Message{}), errs.ErrChannelNotConfigured)
	}
	assert.IsType(t, &kavenegarChannel{}, NewSMSChannel(SMSConfig{Provider: "Kavenegar", APIKey: "k", Sender: "1000"}, log))
}

func TestRenderUnknownType(t *testing.T) {
	subject, body := Render("mystery", nil)
	assert.Equal(t, "Notification", subject)
	assert.Contains(t, body, "mystery")
}
