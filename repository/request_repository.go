package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type requestRepository struct {
	db *gorm.DB
}

func (r *requestRepository) Create(ctx context.Context, req *models.Request) error {
	return translate(r.db.WithContext(ctx).Create(req).Error)
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var req models.Request
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RequestStatus, reason *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":        to,
			"status_reason": reason,
			"updated_at":    at,
		})
	return affected(res)
}

func (r *requestRepository) LinkPayment(ctx context.Context, id, paymentID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ? AND payment_id IS NULL", id).
		Update("payment_id", paymentID)
	return affected(res)
}

func (r *requestRepository) ListByStatusCreatedBetween(ctx context.Context, status models.RequestStatus, after, before time.Time) ([]models.Request, error) {
	q := r.db.WithContext(ctx).Where("status = ? AND created_at < ?", status, before)
	if !after.IsZero() {
		q = q.Where("created_at > ?", after)
	}
	var out []models.Request
	if err := q.Order("created_at asc").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *requestRepository) ListDeadlineBetween(ctx context.Context, statuses []models.RequestStatus, from, to time.Time) ([]models.Request, error) {
	var out []models.Request
	err := r.db.WithContext(ctx).
		Where("status IN ? AND deadline >= ? AND deadline <= ?", statuses, from, to).
		Order("deadline asc").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
