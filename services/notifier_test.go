package services

import (
	"context"
	"errors"
	"testing"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/anjiri1684/letter_broker/repository/memory"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenQueue rejects every enqueue; everything else goes to the memory store.
type brokenQueue struct {
	repository.NotificationRepository
}

func (brokenQueue) Enqueue(context.Context, *models.NotificationQueueItem) error {
	return errors.New("queue unavailable")
}

type brokenQueueStore struct {
	*memory.Store
}

func (s brokenQueueStore) Notifications() repository.NotificationRepository {
	return brokenQueue{s.Store.Notifications()}
}

func TestNotifierDropsUnconfiguredChannels(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := memory.New()
	n := NewNotifier(log, models.ChannelEmail, models.ChannelInApp)

	require.NoError(t, n.Enqueue(context.Background(), store, Notice{Type: models.NotifyNewRequest, RecipientID: uuid.New()}))

	items := store.AllNotifications()
	require.Len(t, items, 1)
	assert.Equal(t, []string{"email", "in_app"}, []string(items[0].Channels), "sms has no provider")
}

func TestNotifierSkipsNoticeWithNoConfiguredChannel(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := memory.New()
	n := NewNotifier(log, models.ChannelInApp)

	notice := Notice{Type: models.NotifyReminder, RecipientID: uuid.New(), Channels: []models.Channel{models.ChannelSMS}}
	require.NoError(t, n.Enqueue(context.Background(), store, notice))
	assert.Empty(t, store.AllNotifications())
}

func TestNotifierWithoutRestrictionKeepsDefaults(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := memory.New()

	require.NoError(t, NewNotifier(log).Enqueue(context.Background(), store, Notice{Type: models.NotifyNewRequest, RecipientID: uuid.New()}))
	items := store.AllNotifications()
	require.Len(t, items, 1)
	assert.Equal(t, []string{"email", "sms", "in_app"}, []string(items[0].Channels))
}

func TestNotifierEnqueueErrorNamesTheNotice(t *testing.T) {
	log, _ := test.NewNullLogger()
	recipient := uuid.New()

	err := NewNotifier(log).Enqueue(context.Background(), brokenQueueStore{memory.New()},
		Notice{Type: models.NotifyPaymentFailed, RecipientID: recipient})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment_failed for "+recipient.String())
	assert.Contains(t, err.Error(), "queue unavailable")
}
