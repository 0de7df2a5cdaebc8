// Package repository is the ledger store: per-table repositories whose writes are
// conditional or unique-constrained so concurrent triggers cannot double-apply.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	// UpdateStatus moves the request from -> to only if it is still in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RequestStatus, reason *string, at time.Time) (bool, error)
	// LinkPayment sets payment_id only while it is unset.
	LinkPayment(ctx context.Context, id, paymentID uuid.UUID) (bool, error)
	// ListByStatusCreatedBetween lists requests in status created strictly between after and before.
	// A zero after means no lower bound.
	ListByStatusCreatedBetween(ctx context.Context, status models.RequestStatus, after, before time.Time) ([]models.Request, error)
	ListDeadlineBetween(ctx context.Context, statuses []models.RequestStatus, from, to time.Time) ([]models.Request, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	// FindOpenByRequest returns the pending or succeeded payment of a request.
	FindOpenByRequest(ctx context.Context, requestID uuid.UUID) (*models.Payment, error)
	SetIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) error
	MarkSucceeded(ctx context.Context, intentID, receipt string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, intentID, reason string, at time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal, reason string, at time.Time) (bool, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, p *models.Payout) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Payout, error)
	// MarkProcessing records the transfer id and moves pending -> processing.
	MarkProcessing(ctx context.Context, id uuid.UUID, transferID string, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	// UpdateFromTransfer locates the payout by transfer id, or by payoutID when the transfer id
	// is not recorded yet, and moves it to `to` if its status is one of from.
	UpdateFromTransfer(ctx context.Context, transferID string, payoutID *uuid.UUID, to models.PayoutStatus, from []models.PayoutStatus, reason *string, at time.Time) (*models.Payout, bool, error)
	ListPendingBefore(ctx context.Context, before time.Time, maxAttempts, limit int) ([]models.Payout, error)
}

type RefundRepository interface {
	Create(ctx context.Context, r *models.Refund) error
	FindByPayment(ctx context.Context, paymentID uuid.UUID) (*models.Refund, error)
	ListQueued(ctx context.Context, limit int) ([]models.Refund, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, processorRefundID string, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, errText string, terminal bool, at time.Time) error
}

type TokenRepository interface {
	Create(ctx context.Context, t *models.Token) error
	FindByCode(ctx context.Context, code string) (*models.Token, error)
	// Redeem consumes the token only while it is unused and unexpired.
	Redeem(ctx context.Context, code string, userID uuid.UUID, now time.Time) (bool, error)
	DeleteExpiredUnused(ctx context.Context, before time.Time) (int64, error)
}

type NotificationRepository interface {
	Enqueue(ctx context.Context, item *models.NotificationQueueItem) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationQueueItem, error)
	// Claim moves a pending item to processing; false means another drainer owns it.
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error
	// MarkRetry and MarkFailed also record the channels that have delivered so far.
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, lastErr string, delivered []string, next time.Time, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, delivered []string, at time.Time) error
	// ExistsForRequest reports whether an item of type for the request was created at or after since.
	ExistsForRequest(ctx context.Context, typ models.NotificationType, requestID uuid.UUID, since time.Time) (bool, error)
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
	DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error)
}

type InAppRepository interface {
	Create(ctx context.Context, n *models.InAppNotification) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.InAppNotification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error)
}

type EventRepository interface {
	// Begin claims a provider event for processing. It returns false for an event that was
	// already processed or is being processed by someone else.
	Begin(ctx context.Context, eventID, typ string, at time.Time) (bool, error)
	Finish(ctx context.Context, eventID string, procErr error, at time.Time) error
}

type AuditRepository interface {
	Write(ctx context.Context, entry *models.AuditLog) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type DirectoryRepository interface {
	FindPayee(ctx context.Context, fulfillerID uuid.UUID) (*models.PayeeAccount, error)
	FindContact(ctx context.Context, userID uuid.UUID) (*models.Contact, error)
}

// Store groups the repositories. InTx runs fn against a transactional view of the store.
type Store interface {
	Requests() RequestRepository
	Payments() PaymentRepository
	Payouts() PayoutRepository
	Refunds() RefundRepository
	Tokens() TokenRepository
	Notifications() NotificationRepository
	InApp() InAppRepository
	Events() EventRepository
	Audit() AuditRepository
	Directory() DirectoryRepository
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// StaleEventAfter is how long an event may sit in processing before a replay may take it over.
const StaleEventAfter = 5 * time.Minute
