package memory

import (
	"context"
	"sort"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type requests struct{ s *Store }

func (r requests) Create(_ context.Context, req *models.Request) error {
	stamp(&req.ID, &req.CreatedAt)
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	if req.Status == "" {
		req.Status = models.RequestPendingAcceptance
	}
	var err error
	r.s.with(func(d *state) {
		if _, ok := d.requests[req.ID]; ok {
			err = repository.ErrDuplicate
			return
		}
		d.requests[req.ID] = copyRequest(*req)
	})
	return err
}

func (r requests) FindByID(_ context.Context, id uuid.UUID) (*models.Request, error) {
	var out *models.Request
	r.s.with(func(d *state) {
		if req, ok := d.requests[id]; ok {
			c := copyRequest(req)
			out = &c
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r requests) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.RequestStatus, reason *string, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		req, ok := d.requests[id]
		if !ok || req.Status != from {
			return
		}
		req.Status = to
		req.StatusReason = reason
		req.UpdatedAt = at
		d.requests[id] = req
		changed = true
	})
	return changed, nil
}

func (r requests) LinkPayment(_ context.Context, id, paymentID uuid.UUID) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		req, ok := d.requests[id]
		if !ok || req.PaymentID != nil {
			return
		}
		req.PaymentID = &paymentID
		d.requests[id] = req
		changed = true
	})
	return changed, nil
}

func (r requests) ListByStatusCreatedBetween(_ context.Context, status models.RequestStatus, after, before time.Time) ([]models.Request, error) {
	var out []models.Request
	r.s.with(func(d *state) {
		for _, req := range d.requests {
			if req.Status != status || !req.CreatedAt.Before(before) {
				continue
			}
			if !after.IsZero() && !req.CreatedAt.After(after) {
				continue
			}
			out = append(out, copyRequest(req))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r requests) ListDeadlineBetween(_ context.Context, statuses []models.RequestStatus, from, to time.Time) ([]models.Request, error) {
	var out []models.Request
	r.s.with(func(d *state) {
		for _, req := range d.requests {
			if !containsStatus(statuses, req.Status) || req.Deadline.Before(from) || req.Deadline.After(to) {
				continue
			}
			out = append(out, copyRequest(req))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func containsStatus[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

type payments struct{ s *Store }

func (r payments) Create(_ context.Context, p *models.Payment) error {
	stamp(&p.ID, &p.CreatedAt)
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	var err error
	r.s.with(func(d *state) {
		for _, existing := range d.payments {
			if existing.ID == p.ID {
				err = repository.ErrDuplicate
				return
			}
			open := existing.Status == models.PaymentPending || existing.Status == models.PaymentSucceeded
			if open && existing.RequestID == p.RequestID && (p.Status == models.PaymentPending || p.Status == models.PaymentSucceeded) {
				err = repository.ErrDuplicate
				return
			}
			if p.IntentID != nil && existing.IntentID != nil && *existing.IntentID == *p.IntentID {
				err = repository.ErrDuplicate
				return
			}
		}
		d.payments[p.ID] = *p
	})
	return err
}

func (r payments) FindByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	var out *models.Payment
	r.s.with(func(d *state) {
		if p, ok := d.payments[id]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r payments) FindByIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	var out *models.Payment
	r.s.with(func(d *state) {
		for _, p := range d.payments {
			if p.IntentID != nil && *p.IntentID == intentID {
				p := p
				out = &p
				return
			}
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r payments) FindOpenByRequest(_ context.Context, requestID uuid.UUID) (*models.Payment, error) {
	var out *models.Payment
	r.s.with(func(d *state) {
		for _, p := range d.payments {
			if p.RequestID != requestID || (p.Status != models.PaymentPending && p.Status != models.PaymentSucceeded) {
				continue
			}
			if out == nil || p.CreatedAt.After(out.CreatedAt) {
				p := p
				out = &p
			}
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r payments) SetIntent(_ context.Context, id uuid.UUID, intentID string, at time.Time) error {
	var err error
	r.s.with(func(d *state) {
		for _, p := range d.payments {
			if p.ID != id && p.IntentID != nil && *p.IntentID == intentID {
				err = repository.ErrDuplicate
				return
			}
		}
		p, ok := d.payments[id]
		if !ok || p.IntentID != nil {
			return
		}
		p.IntentID = strPtr(intentID)
		p.UpdatedAt = at
		d.payments[id] = p
	})
	return err
}

func (r payments) byIntent(d *state, intentID string) (models.Payment, bool) {
	for _, p := range d.payments {
		if p.IntentID != nil && *p.IntentID == intentID {
			return p, true
		}
	}
	return models.Payment{}, false
}

func (r payments) MarkSucceeded(_ context.Context, intentID, receipt string, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		p, ok := r.byIntent(d, intentID)
		if !ok || p.Status != models.PaymentPending {
			return
		}
		p.Status = models.PaymentSucceeded
		p.ReceiptReference = strPtr(receipt)
		p.UpdatedAt = at
		d.payments[p.ID] = p
		changed = true
	})
	return changed, nil
}

func (r payments) MarkFailed(_ context.Context, intentID, reason string, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		p, ok := r.byIntent(d, intentID)
		if !ok || p.Status != models.PaymentPending {
			return
		}
		p.Status = models.PaymentFailed
		p.FailureReason = strPtr(reason)
		p.UpdatedAt = at
		d.payments[p.ID] = p
		changed = true
	})
	return changed, nil
}

func (r payments) MarkRefunded(_ context.Context, id uuid.UUID, amount decimal.Decimal, reason string, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		p, ok := d.payments[id]
		if !ok || p.Status != models.PaymentSucceeded {
			return
		}
		p.Status = models.PaymentRefunded
		p.RefundAmount = decimal.NullDecimal{Decimal: amount, Valid: true}
		p.RefundReason = strPtr(reason)
		p.UpdatedAt = at
		d.payments[id] = p
		changed = true
	})
	return changed, nil
}

type payouts struct{ s *Store }

func (r payouts) Create(_ context.Context, p *models.Payout) error {
	stamp(&p.ID, &p.CreatedAt)
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.Status == "" {
		p.Status = models.PayoutPending
	}
	var err error
	r.s.with(func(d *state) {
		for _, existing := range d.payouts {
			if existing.ID == p.ID || (existing.PaymentID == p.PaymentID && existing.FulfillerID == p.FulfillerID) {
				err = repository.ErrDuplicate
				return
			}
		}
		d.payouts[p.ID] = *p
	})
	return err
}

func (r payouts) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]models.Payout, error) {
	var out []models.Payout
	r.s.with(func(d *state) {
		for _, p := range d.payouts {
			if p.PaymentID == paymentID {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r payouts) MarkProcessing(_ context.Context, id uuid.UUID, transferID string, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		p, ok := d.payouts[id]
		if !ok {
			return
		}
		if p.Status == models.PayoutPending {
			p.Status = models.PayoutProcessing
			p.FailureReason = nil
			p.UpdatedAt = at
			changed = true
		}
		if p.TransferID == nil || changed {
			p.TransferID = strPtr(transferID)
		}
		d.payouts[id] = p
	})
	return changed, nil
}

func (r payouts) RecordFailure(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	r.s.with(func(d *state) {
		p, ok := d.payouts[id]
		if !ok || p.Status != models.PayoutPending {
			return
		}
		p.Attempts++
		p.FailureReason = strPtr(reason)
		p.UpdatedAt = at
		d.payouts[id] = p
	})
	return nil
}

func (r payouts) UpdateFromTransfer(_ context.Context, transferID string, payoutID *uuid.UUID, to models.PayoutStatus, from []models.PayoutStatus, reason *string, at time.Time) (*models.Payout, bool, error) {
	var (
		out     *models.Payout
		changed bool
	)
	r.s.with(func(d *state) {
		var found *models.Payout
		for _, p := range d.payouts {
			if p.TransferID != nil && *p.TransferID == transferID {
				p := p
				found = &p
				break
			}
		}
		if found == nil && payoutID != nil {
			if p, ok := d.payouts[*payoutID]; ok {
				found = &p
			}
		}
		if found == nil {
			return
		}
		out = found
		if !containsStatus(from, found.Status) {
			return
		}
		found.Status = to
		found.TransferID = strPtr(transferID)
		if reason != nil {
			found.FailureReason = reason
		}
		found.UpdatedAt = at
		d.payouts[found.ID] = *found
		changed = true
	})
	if out == nil {
		return nil, false, repository.ErrNotFound
	}
	return out, changed, nil
}

func (r payouts) ListPendingBefore(_ context.Context, before time.Time, maxAttempts, limit int) ([]models.Payout, error) {
	var out []models.Payout
	r.s.with(func(d *state) {
		for _, p := range d.payouts {
			if p.Status == models.PayoutPending && p.CreatedAt.Before(before) && p.Attempts < maxAttempts {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type refunds struct{ s *Store }

func (r refunds) Create(_ context.Context, rf *models.Refund) error {
	stamp(&rf.ID, &rf.CreatedAt)
	if rf.UpdatedAt.IsZero() {
		rf.UpdatedAt = rf.CreatedAt
	}
	if rf.Status == "" {
		rf.Status = models.RefundQueued
	}
	var err error
	r.s.with(func(d *state) {
		for _, existing := range d.refunds {
			if existing.ID == rf.ID || existing.PaymentID == rf.PaymentID {
				err = repository.ErrDuplicate
				return
			}
		}
		d.refunds[rf.ID] = *rf
	})
	return err
}

func (r refunds) FindByPayment(_ context.Context, paymentID uuid.UUID) (*models.Refund, error) {
	var out *models.Refund
	r.s.with(func(d *state) {
		for _, rf := range d.refunds {
			if rf.PaymentID == paymentID {
				rf := rf
				out = &rf
				return
			}
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r refunds) ListQueued(_ context.Context, limit int) ([]models.Refund, error) {
	var out []models.Refund
	r.s.with(func(d *state) {
		for _, rf := range d.refunds {
			if rf.Status == models.RefundQueued {
				out = append(out, rf)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r refunds) MarkSucceeded(_ context.Context, id uuid.UUID, processorRefundID string, at time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		rf, ok := d.refunds[id]
		if !ok || rf.Status != models.RefundQueued {
			return
		}
		rf.Status = models.RefundSucceeded
		rf.Attempts++
		rf.LastError = nil
		if processorRefundID != "" {
			rf.ProcessorRefundID = strPtr(processorRefundID)
		}
		rf.UpdatedAt = at
		d.refunds[id] = rf
		changed = true
	})
	return changed, nil
}

func (r refunds) RecordFailure(_ context.Context, id uuid.UUID, errText string, terminal bool, at time.Time) error {
	r.s.with(func(d *state) {
		rf, ok := d.refunds[id]
		if !ok || rf.Status != models.RefundQueued {
			return
		}
		rf.Attempts++
		rf.LastError = strPtr(errText)
		if terminal {
			rf.Status = models.RefundFailed
		}
		rf.UpdatedAt = at
		d.refunds[id] = rf
	})
	return nil
}

type tokens struct{ s *Store }

func (r tokens) Create(_ context.Context, t *models.Token) error {
	stamp(&t.ID, &t.CreatedAt)
	t.Code = models.NormalizeTokenCode(t.Code)
	var err error
	r.s.with(func(d *state) {
		if _, ok := d.tokens[t.Code]; ok {
			err = repository.ErrDuplicate
			return
		}
		d.tokens[t.Code] = *t
	})
	return err
}

func (r tokens) FindByCode(_ context.Context, code string) (*models.Token, error) {
	t, ok := r.s.Token(code)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r tokens) Redeem(_ context.Context, code string, userID uuid.UUID, now time.Time) (bool, error) {
	var changed bool
	r.s.with(func(d *state) {
		key := models.NormalizeTokenCode(code)
		t, ok := d.tokens[key]
		if !ok || !t.Usable(now) {
			return
		}
		t.UsedBy = &userID
		t.UsedDate = timePtr(now)
		d.tokens[key] = t
		changed = true
	})
	return changed, nil
}

func (r tokens) DeleteExpiredUnused(_ context.Context, before time.Time) (int64, error) {
	var n int64
	r.s.with(func(d *state) {
		for code, t := range d.tokens {
			if t.UsedBy == nil && models.StartOfDay(t.ExpiryDate).Before(models.StartOfDay(before)) {
				delete(d.tokens, code)
				n++
			}
		}
	})
	return n, nil
}
