package notifications

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/anjiri1684/letter_broker/metrics"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/sirupsen/logrus"
)

const DefaultBatchSize = 100

type DrainResult struct {
	Selected int `json:"selected"`
	Skipped  int `json:"skipped"`
	Sent     int `json:"sent"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
}

// Processor drains the notification queue. Several processors may drain the same queue;
// the pending to processing claim decides who delivers an item.
type Processor struct {
	store    repository.Store
	channels map[models.Channel]Channel
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewProcessor(store repository.Store, log logrus.FieldLogger, channels ...Channel) *Processor {
	byName := make(map[models.Channel]Channel, len(channels))
	for _, c := range channels {
		byName[c.Name()] = c
	}
	return &Processor{store: store, channels: byName, log: log, now: time.Now}
}

// Backoff is the delay before the next attempt after attempts failures.
func Backoff(attempts int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempts))) * time.Minute
}

func (p *Processor) Drain(ctx context.Context, batchSize int) (DrainResult, error) {
	var res DrainResult
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	due, err := p.store.Notifications().ListDue(ctx, p.now().UTC(), batchSize)
	if err != nil {
		return res, fmt.Errorf("list due notifications: %w", err)
	}
	res.Selected = len(due)

	for i := range due {
		item := due[i]
		claimed, err := p.store.Notifications().Claim(ctx, item.ID, p.now().UTC())
		if err != nil {
			p.log.WithError(err).WithField("item_id", item.ID).Error("claim notification")
			res.Skipped++
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}

		switch p.handle(ctx, &item) {
		case models.NotificationSent:
			res.Sent++
		case models.NotificationFailed:
			res.Failed++
		default:
			res.Retrying++
		}
	}
	return res, nil
}

// Configured lists the channels backed by a real provider.
func (p *Processor) Configured() []models.Channel {
	out := make([]models.Channel, 0, len(p.channels))
	for name, c := range p.channels {
		if _, noop := c.(*noopChannel); !noop {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// handle delivers one claimed item and records the outcome. It returns the resulting status.
// The item is sent only once every requested channel has accepted it.
func (p *Processor) handle(ctx context.Context, item *models.NotificationQueueItem) models.NotificationStatus {
	log := p.log.WithFields(logrus.Fields{"item_id": item.ID, "type": item.Type})
	attempts := item.Attempts + 1

	delivered, deliverErr := p.deliverSafely(ctx, item)
	done := append(append([]string{}, item.DeliveredChannels...), delivered...)
	now := p.now().UTC()
	if deliverErr == nil {
		if err := p.store.Notifications().MarkSent(ctx, item.ID, attempts, now); err != nil {
			log.WithError(err).Error("mark notification sent")
		}
		return models.NotificationSent
	}

	if attempts >= models.MaxNotificationAttempts {
		log.WithError(deliverErr).Warn("notification failed permanently")
		if err := p.store.Notifications().MarkFailed(ctx, item.ID, attempts, deliverErr.Error(), done, now); err != nil {
			log.WithError(err).Error("mark notification failed")
		}
		return models.NotificationFailed
	}

	next := now.Add(Backoff(attempts))
	log.WithError(deliverErr).WithField("next_retry", next).Info("notification will be retried")
	if err := p.store.Notifications().MarkRetry(ctx, item.ID, attempts, deliverErr.Error(), done, next, now); err != nil {
		log.WithError(err).Error("mark notification for retry")
	}
	return models.NotificationPending
}

func (p *Processor) deliverSafely(ctx context.Context, item *models.NotificationQueueItem) (delivered []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while delivering: %v", r)
		}
	}()
	err = p.deliver(ctx, item, &delivered)
	return delivered, err
}

// deliver sends the item on each channel that has not accepted it yet. Channels that succeed are
// appended to delivered as they go, so a later panic does not lose them.
func (p *Processor) deliver(ctx context.Context, item *models.NotificationQueueItem, delivered *[]string) error {
	if item.RecipientID == nil {
		return errors.New("notification has no recipient")
	}
	pending := item.PendingChannels()
	if len(item.Channels) == 0 {
		return errors.New("notification has no channels")
	}
	contact, err := p.store.Directory().FindContact(ctx, *item.RecipientID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		contact = &models.Contact{UserID: *item.RecipientID}
	case err != nil:
		return fmt.Errorf("load recipient contact: %w", err)
	}

	subject, body := Render(item.Type, item.Payload)
	msg := Message{
		ItemID:    item.ID,
		Type:      item.Type,
		Recipient: *contact,
		Subject:   subject,
		Body:      body,
		Data:      item.Payload,
	}

	var failures []string
	for _, name := range pending {
		ch, ok := p.channels[name]
		if !ok {
			ch = NewNoopChannel(name)
		}
		if err := ch.Deliver(ctx, msg); err != nil {
			metrics.Notifications.WithLabelValues(string(name), "error").Inc()
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		metrics.Notifications.WithLabelValues(string(name), "sent").Inc()
		*delivered = append(*delivered, string(name))
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}
