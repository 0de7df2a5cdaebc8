package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventRepository struct {
	db *gorm.DB
}

func (r *eventRepository) Begin(ctx context.Context, eventID, typ string, at time.Time) (bool, error) {
	db := r.db.WithContext(ctx)
	ev := models.WebhookEvent{
		ID:              uuid.New(),
		ProviderEventID: eventID,
		Type:            typ,
		Status:          models.WebhookProcessing,
		Attempts:        1,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(&ev)
	if inserted, err := affected(res); err != nil || inserted {
		return inserted, err
	}

	// Seen before: take it over only if the earlier attempt failed or was abandoned.
	res = db.Model(&models.WebhookEvent{}).
		Where("provider_event_id = ? AND (status = ? OR (status = ? AND updated_at < ?))",
			eventID, models.WebhookFailed, models.WebhookProcessing, at.Add(-StaleEventAfter)).
		Updates(map[string]interface{}{
			"status":     models.WebhookProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": at,
		})
	return affected(res)
}

func (r *eventRepository) Finish(ctx context.Context, eventID string, procErr error, at time.Time) error {
	updates := map[string]interface{}{"status": models.WebhookProcessed, "error": nil, "updated_at": at}
	if procErr != nil {
		updates["status"] = models.WebhookFailed
		updates["error"] = procErr.Error()
	}
	return translate(r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider_event_id = ?", eventID).
		Updates(updates).Error)
}

type auditRepository struct {
	db *gorm.DB
}

func (r *auditRepository) Write(ctx context.Context, entry *models.AuditLog) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error)
}

func (r *auditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.AuditLog{})
	return res.RowsAffected, translate(res.Error)
}

type directoryRepository struct {
	db *gorm.DB
}

func (r *directoryRepository) FindPayee(ctx context.Context, fulfillerID uuid.UUID) (*models.PayeeAccount, error) {
	var p models.PayeeAccount
	if err := r.db.WithContext(ctx).First(&p, "fulfiller_id = ?", fulfillerID).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *directoryRepository) FindContact(ctx context.Context, userID uuid.UUID) (*models.Contact, error) {
	var c models.Contact
	if err := r.db.WithContext(ctx).First(&c, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}
