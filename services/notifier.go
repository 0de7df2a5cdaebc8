package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Notice is one notification to queue. Channels defaults per type when empty.
type Notice struct {
	Type        models.NotificationType
	RecipientID uuid.UUID
	RequestID   *uuid.UUID
	Payload     map[string]interface{}
	Channels    []models.Channel
}

var defaultChannels = map[models.NotificationType][]models.Channel{
	models.NotifyStatusChange:    {models.ChannelEmail, models.ChannelInApp},
	models.NotifyNewRequest:      {models.ChannelEmail, models.ChannelSMS, models.ChannelInApp},
	models.NotifyPaymentFailed:   {models.ChannelEmail, models.ChannelInApp},
	models.NotifyPayoutSucceeded: {models.ChannelEmail, models.ChannelInApp},
	models.NotifyPayoutFailed:    {models.ChannelEmail, models.ChannelInApp},
	models.NotifyReminder:        {models.ChannelEmail, models.ChannelWhatsApp, models.ChannelInApp},
	models.NotifyRequesterUpdate: {models.ChannelEmail, models.ChannelInApp},
	models.NotifyDeadlineAlert:   {models.ChannelEmail, models.ChannelSMS, models.ChannelInApp},
	models.NotifyRefundIssued:    {models.ChannelEmail, models.ChannelInApp},
}

// Notifier turns domain events into queue rows. It never talks to a channel directly.
type Notifier struct {
	log     logrus.FieldLogger
	now     func() time.Time
	enabled map[models.Channel]bool
}

// NewNotifier queues notices on the given channels only; channels without a provider are
// dropped at enqueue time. With no channels listed every channel is allowed.
func NewNotifier(log logrus.FieldLogger, enabled ...models.Channel) *Notifier {
	n := &Notifier{log: log, now: time.Now}
	if len(enabled) > 0 {
		n.enabled = make(map[models.Channel]bool, len(enabled))
		for _, c := range enabled {
			n.enabled[c] = true
		}
	}
	return n
}

func (n *Notifier) channelsFor(notice Notice) []string {
	channels := notice.Channels
	if len(channels) == 0 {
		channels = defaultChannels[notice.Type]
	}
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		if n.enabled != nil && !n.enabled[c] {
			continue
		}
		names = append(names, string(c))
	}
	return names
}

func (n *Notifier) Enqueue(ctx context.Context, store repository.Store, notices ...Notice) error {
	var errs []error
	for _, notice := range notices {
		names := n.channelsFor(notice)
		if len(names) == 0 {
			n.log.WithFields(logrus.Fields{"type": notice.Type, "recipient_id": notice.RecipientID}).
				Warn("no configured channel for notice, dropping it")
			continue
		}

		payload := datatypes.JSONMap{}
		for k, v := range notice.Payload {
			payload[k] = v
		}

		recipient := notice.RecipientID
		now := n.now().UTC()
		item := &models.NotificationQueueItem{
			ID:           uuid.New(),
			RecipientID:  &recipient,
			RequestID:    notice.RequestID,
			Type:         notice.Type,
			Channels:     names,
			Payload:      payload,
			Status:       models.NotificationPending,
			ScheduledFor: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.Notifications().Enqueue(ctx, item); err != nil {
			errs = append(errs, fmt.Errorf("%s for %s: %w", notice.Type, notice.RecipientID, err))
		}
	}
	return errors.Join(errs...)
}

// Notify is Enqueue for callers that already committed their state change: a failure is logged only.
func (n *Notifier) Notify(ctx context.Context, store repository.Store, notices ...Notice) {
	if err := n.Enqueue(ctx, store, notices...); err != nil {
		n.log.WithError(err).WithField("count", len(notices)).Error("failed to enqueue notifications")
	}
}
