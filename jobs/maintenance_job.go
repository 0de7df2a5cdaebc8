package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/letter_broker/metrics"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/sirupsen/logrus"
)

type CleanupSummary struct {
	Notifications int64 `json:"notifications"`
	Tokens        int64 `json:"tokens"`
	AuditLogs     int64 `json:"audit_logs"`
}

// Cleanup prunes resolved queue items, unused expired tokens and old audit rows.
// Pending and processing queue items are never touched.
func (e *Enforcer) Cleanup(ctx context.Context) (CleanupSummary, error) {
	metrics.SweepRuns.WithLabelValues("cleanup").Inc()
	var sum CleanupSummary
	now := e.now().UTC()

	var errs []error
	var err error
	if sum.Notifications, err = e.store.Notifications().DeleteResolvedBefore(ctx, now.Add(-QueueRetention)); err != nil {
		errs = append(errs, fmt.Errorf("delete resolved notifications: %w", err))
	}
	if sum.Tokens, err = e.store.Tokens().DeleteExpiredUnused(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("delete expired tokens: %w", err))
	}
	if sum.AuditLogs, err = e.store.Audit().DeleteBefore(ctx, now.Add(-AuditRetention)); err != nil {
		errs = append(errs, fmt.Errorf("delete old audit logs: %w", err))
	}

	e.log.WithFields(logrus.Fields{
		"notifications": sum.Notifications,
		"tokens":        sum.Tokens,
		"audit_logs":    sum.AuditLogs,
	}).Info("cleanup sweep finished")
	return sum, errors.Join(errs...)
}

type ReleaseSummary struct {
	Released int64 `json:"released"`
}

// ReleaseStuckNotifications hands items left in processing by a crashed drainer back to the queue.
func (e *Enforcer) ReleaseStuckNotifications(ctx context.Context) (ReleaseSummary, error) {
	metrics.SweepRuns.WithLabelValues("release_notifications").Inc()
	n, err := e.store.Notifications().ReleaseStale(ctx, e.now().UTC().Add(-StuckNotificationAge))
	if err != nil {
		return ReleaseSummary{}, fmt.Errorf("release stuck notifications: %w", err)
	}
	if n > 0 {
		e.log.WithField("released", n).Warn("released stuck notifications")
	}
	return ReleaseSummary{Released: n}, nil
}

func (e *Enforcer) RetryPayouts(ctx context.Context) (services.RetrySummary, error) {
	metrics.SweepRuns.WithLabelValues("payout_retry").Inc()
	return e.payouts.RetryPending(ctx, PayoutRetryAfter, sweepBatch)
}

func (e *Enforcer) ProcessRefunds(ctx context.Context) (services.RefundSummary, error) {
	metrics.SweepRuns.WithLabelValues("refunds").Inc()
	return e.refunds.ProcessQueued(ctx, sweepBatch)
}
