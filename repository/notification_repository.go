package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

func (r *notificationRepository) Enqueue(ctx context.Context, item *models.NotificationQueueItem) error {
	return translate(r.db.WithContext(ctx).Create(item).Error)
}

func (r *notificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.NotificationQueueItem, error) {
	var out []models.NotificationQueueItem
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.NotificationPending, now).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *notificationRepository) Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.NotificationQueueItem{}).
		Where("id = ? AND status = ?", id, models.NotificationPending).
		Updates(map[string]interface{}{"status": models.NotificationProcessing, "updated_at": at})
	return affected(res)
}

func (r *notificationRepository) MarkSent(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":     models.NotificationSent,
		"attempts":   attempts,
		"sent_at":    at,
		"next_retry": nil,
		"updated_at": at,
	})
}

func (r *notificationRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, lastErr string, delivered []string, next time.Time, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":             models.NotificationPending,
		"attempts":           attempts,
		"last_error":         lastErr,
		"delivered_channels": pq.StringArray(delivered),
		"next_retry":         next,
		"scheduled_for":      next,
		"updated_at":         at,
	})
}

func (r *notificationRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, delivered []string, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":             models.NotificationFailed,
		"attempts":           attempts,
		"last_error":         lastErr,
		"delivered_channels": pq.StringArray(delivered),
		"next_retry":         nil,
		"updated_at":         at,
	})
}

// finish only touches items this drainer holds in processing, so sent rows are never rewritten.
func (r *notificationRepository) finish(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return translate(r.db.WithContext(ctx).Model(&models.NotificationQueueItem{}).
		Where("id = ? AND status = ?", id, models.NotificationProcessing).
		Updates(updates).Error)
}

func (r *notificationRepository) ExistsForRequest(ctx context.Context, typ models.NotificationType, requestID uuid.UUID, since time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.NotificationQueueItem{}).
		Where("type = ? AND request_id = ?", typ, requestID)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (r *notificationRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.NotificationQueueItem{}).
		Where("status = ? AND updated_at < ?", models.NotificationProcessing, before).
		Update("status", models.NotificationPending)
	return res.RowsAffected, translate(res.Error)
}

func (r *notificationRepository) DeleteResolvedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []models.NotificationStatus{models.NotificationSent, models.NotificationFailed}, before).
		Delete(&models.NotificationQueueItem{})
	return res.RowsAffected, translate(res.Error)
}

type inAppRepository struct {
	db *gorm.DB
}

func (r *inAppRepository) Create(ctx context.Context, n *models.InAppNotification) error {
	return translate(r.db.WithContext(ctx).Create(n).Error)
}

func (r *inAppRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.InAppNotification, error) {
	var out []models.InAppNotification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *inAppRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.InAppNotification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", at)
	return affected(res)
}
