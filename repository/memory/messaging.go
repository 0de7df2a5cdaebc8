package memory

import (
	"context"
	"sort"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
)

type notifications struct{ s *Store }

func (r notifications) Enqueue(_ context.Context, item *models.NotificationQueueItem) error {
	stamp(&item.ID, &item.CreatedAt)
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if item.Status == "" {
		item.Status = models.NotificationPending
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = item.CreatedAt
	}
	var err error
	r.s.with(func(d *state) {
		if _, ok := d.notifications[item.ID]; ok {
			err = repository.ErrDuplicate
			return
		}
		d.notifications[item.ID] = copyItem(*item)
	})
	return err
}

func (r notifications) ListDue(_ context.Context, now time.Time, limit int) ([]models.NotificationQueueItem, error) {
	var out []models.NotificationQueueItem
	r.s.with(func(d *state) {
		for _, n := range d.notifications {
			if n.Status == models.NotificationPending && !n.ScheduledFor.After(now) {
				out = append(out, copyItem(n))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r notifications) Claim(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		n, ok := d.notifications[id]
		if !ok || n.Status != models.NotificationPending {
			return
		}
		n.Status = models.NotificationProcessing
		n.UpdatedAt = at
		d.notifications[id] = n
		changed = true
	})
	return changed, nil
}

func (r notifications) finish(id uuid.UUID, apply func(n *models.NotificationQueueItem)) {
	r.s.with(func(d *state) {
		n, ok := d.notifications[id]
		if !ok || n.Status != models.NotificationProcessing {
			return
		}
		apply(&n)
		d.notifications[id] = n
	})
}

func (r notifications) MarkSent(_ context.Context, id uuid.UUID, attempts int, at time.Time) error {
	r.finish(id, func(n *models.NotificationQueueItem) {
		n.Status = models.NotificationSent
		n.Attempts = attempts
		n.SentAt = timePtr(at)
		n.NextRetry = nil
		n.UpdatedAt = at
	})
	return nil
}

func (r notifications) MarkRetry(_ context.Context, id uuid.UUID, attempts int, lastErr string, delivered []string, next time.Time, at time.Time) error {
	r.finish(id, func(n *models.NotificationQueueItem) {
		n.Status = models.NotificationPending
		n.Attempts = attempts
		n.LastError = strPtr(lastErr)
		n.DeliveredChannels = copyStrings(delivered)
		n.NextRetry = timePtr(next)
		n.ScheduledFor = next
		n.UpdatedAt = at
	})
	return nil
}

func (r notifications) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastErr string, delivered []string, at time.Time) error {
	r.finish(id, func(n *models.NotificationQueueItem) {
		n.Status = models.NotificationFailed
		n.Attempts = attempts
		n.LastError = strPtr(lastErr)
		n.DeliveredChannels = copyStrings(delivered)
		n.NextRetry = nil
		n.UpdatedAt = at
	})
	return nil
}

func (r notifications) ExistsForRequest(_ context.Context, typ models.NotificationType, requestID uuid.UUID, since time.Time) (bool, error) {
	var found bool
	r.s.with(func(d *state) {
		for _, n := range d.notifications {
			if n.Type == typ && n.RequestID != nil && *n.RequestID == requestID && !n.CreatedAt.Before(since) {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r notifications) ReleaseStale(_ context.Context, before time.Time) (int64, error) {
	var count int64
	r.s.with(func(d *state) {
		for id, n := range d.notifications {
			if n.Status == models.NotificationProcessing && n.UpdatedAt.Before(before) {
				n.Status = models.NotificationPending
				n.UpdatedAt = time.Now().UTC()
				d.notifications[id] = n
				count++
			}
		}
	})
	return count, nil
}

func (r notifications) DeleteResolvedBefore(_ context.Context, before time.Time) (int64, error) {
	var count int64
	r.s.with(func(d *state) {
		for id, n := range d.notifications {
			resolved := n.Status == models.NotificationSent || n.Status == models.NotificationFailed
			if resolved && n.UpdatedAt.Before(before) {
				delete(d.notifications, id)
				count++
			}
		}
	})
	return count, nil
}

type inApp struct{ s *Store }

func (r inApp) Create(_ context.Context, n *models.InAppNotification) error {
	stamp(&n.ID, &n.CreatedAt)
	r.s.with(func(d *state) {
		c := *n
		c.Data = copyJSON(n.Data)
		d.inApp[n.ID] = c
	})
	return nil
}

func (r inApp) ListForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.InAppNotification, error) {
	var out []models.InAppNotification
	r.s.with(func(d *state) {
		for _, n := range d.inApp {
			if n.UserID == userID {
				out = append(out, n)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r inApp) MarkRead(_ context.Context, id, userID uuid.UUID, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		n, ok := d.inApp[id]
		if !ok || n.UserID != userID || n.ReadAt != nil {
			return
		}
		n.ReadAt = timePtr(at)
		d.inApp[id] = n
		changed = true
	})
	return changed, nil
}

type events struct{ s *Store }

func (r events) Begin(_ context.Context, eventID, typ string, at time.Time) (bool, error) {
	var claimed bool
	r.s.with(func(d *state) {
		ev, ok := d.events[eventID]
		if !ok {
			d.events[eventID] = models.WebhookEvent{
				ID:              uuid.New(),
				ProviderEventID: eventID,
				Type:            typ,
				Status:          models.WebhookProcessing,
				Attempts:        1,
				CreatedAt:       at,
				UpdatedAt:       at,
			}
			claimed = true
			return
		}
		stale := ev.Status == models.WebhookProcessing && ev.UpdatedAt.Before(at.Add(-repository.StaleEventAfter))
		if ev.Status != models.WebhookFailed && !stale {
			return
		}
		ev.Status = models.WebhookProcessing
		ev.Attempts++
		ev.UpdatedAt = at
		d.events[eventID] = ev
		claimed = true
	})
	return claimed, nil
}

func (r events) Finish(_ context.Context, eventID string, procErr error, at time.Time) error {
	r.s.with(func(d *state) {
		ev, ok := d.events[eventID]
		if !ok {
			return
		}
		ev.Status = models.WebhookProcessed
		ev.Error = nil
		if procErr != nil {
			ev.Status = models.WebhookFailed
			ev.Error = strPtr(procErr.Error())
		}
		ev.UpdatedAt = at
		d.events[eventID] = ev
	})
	return nil
}

type audit struct{ s *Store }

func (r audit) Write(_ context.Context, entry *models.AuditLog) error {
	stamp(&entry.ID, &entry.CreatedAt)
	r.s.with(func(d *state) { d.audit[entry.ID] = *entry })
	return nil
}

func (r audit) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var count int64
	r.s.with(func(d *state) {
		for id, a := range d.audit {
			if a.CreatedAt.Before(before) {
				delete(d.audit, id)
				count++
			}
		}
	})
	return count, nil
}

type directory struct{ s *Store }

func (r directory) FindPayee(_ context.Context, fulfillerID uuid.UUID) (*models.PayeeAccount, error) {
	var out *models.PayeeAccount
	r.s.with(func(d *state) {
		if p, ok := d.payees[fulfillerID]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r directory) FindContact(_ context.Context, userID uuid.UUID) (*models.Contact, error) {
	var out *models.Contact
	r.s.with(func(d *state) {
		if c, ok := d.contacts[userID]; ok {
			out = &c
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}
