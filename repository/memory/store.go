// Package memory is an in-process Store used by STORE_DRIVER=memory and by service tests.
// It mirrors the conditional writes and unique constraints of the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type state struct {
	requests      map[uuid.UUID]models.Request
	payments      map[uuid.UUID]models.Payment
	payouts       map[uuid.UUID]models.Payout
	refunds       map[uuid.UUID]models.Refund
	tokens        map[string]models.Token
	notifications map[uuid.UUID]models.NotificationQueueItem
	inApp         map[uuid.UUID]models.InAppNotification
	events        map[string]models.WebhookEvent
	audit         map[uuid.UUID]models.AuditLog
	payees        map[uuid.UUID]models.PayeeAccount
	contacts      map[uuid.UUID]models.Contact
}

func newState() *state {
	return &state{
		requests:      map[uuid.UUID]models.Request{},
		payments:      map[uuid.UUID]models.Payment{},
		payouts:       map[uuid.UUID]models.Payout{},
		refunds:       map[uuid.UUID]models.Refund{},
		tokens:        map[string]models.Token{},
		notifications: map[uuid.UUID]models.NotificationQueueItem{},
		inApp:         map[uuid.UUID]models.InAppNotification{},
		events:        map[string]models.WebhookEvent{},
		audit:         map[uuid.UUID]models.AuditLog{},
		payees:        map[uuid.UUID]models.PayeeAccount{},
		contacts:      map[uuid.UUID]models.Contact{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	for k, v := range s.inApp {
		c.inApp[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.audit {
		c.audit[k] = v
	}
	for k, v := range s.payees {
		c.payees[k] = v
	}
	for k, v := range s.contacts {
		c.contacts[k] = v
	}
	return c
}

type Store struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	data **state
	inTx bool
}

func New() *Store {
	d := newState()
	return &Store{mu: &sync.Mutex{}, txMu: &sync.Mutex{}, data: &d}
}

func (s *Store) Requests() repository.RequestRepository           { return requests{s} }
func (s *Store) Payments() repository.PaymentRepository           { return payments{s} }
func (s *Store) Payouts() repository.PayoutRepository             { return payouts{s} }
func (s *Store) Refunds() repository.RefundRepository             { return refunds{s} }
func (s *Store) Tokens() repository.TokenRepository               { return tokens{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notifications{s} }
func (s *Store) InApp() repository.InAppRepository                { return inApp{s} }
func (s *Store) Events() repository.EventRepository               { return events{s} }
func (s *Store) Audit() repository.AuditRepository                { return audit{s} }
func (s *Store) Directory() repository.DirectoryRepository        { return directory{s} }

// InTx serializes transactions and restores the previous state when fn fails. fn must only
// use the store it is handed; the outer store blocks until the transaction ends.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := (*s.data).clone()
	s.mu.Unlock()

	tx := &Store{mu: s.mu, txMu: s.txMu, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		*s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// with runs fn under the data lock. Outside a transaction it first waits for any running
// transaction, so a rollback never wipes a write made next to it.
func (s *Store) with(fn func(d *state)) {
	if !s.inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(*s.data)
}

// PutPayee seeds the payee directory.
func (s *Store) PutPayee(p models.PayeeAccount) {
	s.with(func(d *state) { d.payees[p.FulfillerID] = p })
}

// PutContact seeds the contact directory.
func (s *Store) PutContact(c models.Contact) {
	s.with(func(d *state) { d.contacts[c.UserID] = c })
}

// PutToken seeds a token, keyed by its normalized code.
func (s *Store) PutToken(t models.Token) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Code = models.NormalizeTokenCode(t.Code)
	s.with(func(d *state) { d.tokens[t.Code] = t })
}

// Snapshot accessors for tests and the dev server.

func (s *Store) AllPayments() []models.Payment {
	var out []models.Payment
	s.with(func(d *state) {
		for _, p := range d.payments {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) AllPayouts() []models.Payout {
	var out []models.Payout
	s.with(func(d *state) {
		for _, p := range d.payouts {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) AllRefunds() []models.Refund {
	var out []models.Refund
	s.with(func(d *state) {
		for _, r := range d.refunds {
			out = append(out, r)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) AllNotifications() []models.NotificationQueueItem {
	var out []models.NotificationQueueItem
	s.with(func(d *state) {
		for _, n := range d.notifications {
			out = append(out, copyItem(n))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) AllAudit() []models.AuditLog {
	var out []models.AuditLog
	s.with(func(d *state) {
		for _, a := range d.audit {
			out = append(out, a)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Token(code string) (models.Token, bool) {
	var t models.Token
	var ok bool
	s.with(func(d *state) { t, ok = d.tokens[models.NormalizeTokenCode(code)] })
	return t, ok
}

func (s *Store) Event(id string) (models.WebhookEvent, bool) {
	var e models.WebhookEvent
	var ok bool
	s.with(func(d *state) { e, ok = d.events[id] })
	return e, ok
}

func stamp(id *uuid.UUID, created *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if created.IsZero() {
		*created = time.Now().UTC()
	}
}

func copyStrings(a pq.StringArray) pq.StringArray {
	if a == nil {
		return nil
	}
	return append(pq.StringArray{}, a...)
}

func copyJSON(m datatypes.JSONMap) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyRequest(r models.Request) models.Request {
	r.FulfillerIDs = copyStrings(r.FulfillerIDs)
	return r
}

func copyItem(n models.NotificationQueueItem) models.NotificationQueueItem {
	n.Channels = copyStrings(n.Channels)
	n.DeliveredChannels = copyStrings(n.DeliveredChannels)
	n.Payload = copyJSON(n.Payload)
	return n
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
