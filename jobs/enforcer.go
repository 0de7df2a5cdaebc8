// Package jobs holds the scheduled lifecycle sweeps. Every sweep is a set of conditional
// writes, so overlapping runs from cron and the HTTP triggers are harmless.
package jobs

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/repository"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/sirupsen/logrus"
)

const (
	ReminderAfter       = 7 * 24 * time.Hour
	AutoCancelAfter     = 14 * 24 * time.Hour
	ReminderInterval    = 24 * time.Hour
	DeadlineAlertWithin = 3 * 24 * time.Hour

	QueueRetention = 30 * 24 * time.Hour
	AuditRetention = 90 * 24 * time.Hour

	PayoutRetryAfter     = 10 * time.Minute
	StuckNotificationAge = 15 * time.Minute
	sweepBatch           = 100
)

const autoCancelReason = services.AutoCancelReason

type PayoutRetrier interface {
	RetryPending(ctx context.Context, olderThan time.Duration, limit int) (services.RetrySummary, error)
}

type RefundSettler interface {
	ProcessQueued(ctx context.Context, limit int) (services.RefundSummary, error)
}

type Enforcer struct {
	store    repository.Store
	notifier *services.Notifier
	audit    services.Auditor
	payouts  PayoutRetrier
	refunds  RefundSettler
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewEnforcer(store repository.Store, notifier *services.Notifier, audit services.Auditor, payouts PayoutRetrier, refunds RefundSettler, log logrus.FieldLogger) *Enforcer {
	return &Enforcer{
		store:    store,
		notifier: notifier,
		audit:    audit,
		payouts:  payouts,
		refunds:  refunds,
		log:      log,
		now:      time.Now,
	}
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
