package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

func (r *paymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *paymentRepository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "intent_id = ?", intentID).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *paymentRepository) FindOpenByRequest(ctx context.Context, requestID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND status IN ?", requestID, []models.PaymentStatus{models.PaymentPending, models.PaymentSucceeded}).
		Order("created_at desc").
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *paymentRepository) SetIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) error {
	return translate(r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND intent_id IS NULL", id).
		Updates(map[string]interface{}{"intent_id": intentID, "updated_at": at}).Error)
}

func (r *paymentRepository) MarkSucceeded(ctx context.Context, intentID, receipt string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("intent_id = ? AND status = ?", intentID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":            models.PaymentSucceeded,
			"receipt_reference": receipt,
			"updated_at":        at,
		})
	return affected(res)
}

func (r *paymentRepository) MarkFailed(ctx context.Context, intentID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("intent_id = ? AND status = ?", intentID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":         models.PaymentFailed,
			"failure_reason": reason,
			"updated_at":     at,
		})
	return affected(res)
}

func (r *paymentRepository) MarkRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentSucceeded).
		Updates(map[string]interface{}{
			"status":        models.PaymentRefunded,
			"refund_amount": decimal.NullDecimal{Decimal: amount, Valid: true},
			"refund_reason": reason,
			"updated_at":    at,
		})
	return affected(res)
}

type payoutRepository struct {
	db *gorm.DB
}

func (r *payoutRepository) Create(ctx context.Context, p *models.Payout) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *payoutRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Payout, error) {
	var out []models.Payout
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("created_at asc").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *payoutRepository) MarkProcessing(ctx context.Context, id uuid.UUID, transferID string, at time.Time) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, models.PayoutPending).
		Updates(map[string]interface{}{
			"status":         models.PayoutProcessing,
			"transfer_id":    transferID,
			"failure_reason": nil,
			"updated_at":     at,
		})
	changed, err := affected(res)
	if err != nil || changed {
		return changed, err
	}
	// A transfer webhook may have moved the payout on already; keep the reference anyway.
	err = db.Model(&models.Payout{}).
		Where("id = ? AND transfer_id IS NULL", id).
		Update("transfer_id", transferID).Error
	return false, translate(err)
}

func (r *payoutRepository) RecordFailure(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return translate(r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, models.PayoutPending).
		Updates(map[string]interface{}{
			"attempts":       gorm.Expr("attempts + 1"),
			"failure_reason": reason,
			"updated_at":     at,
		}).Error)
}

func (r *payoutRepository) UpdateFromTransfer(ctx context.Context, transferID string, payoutID *uuid.UUID, to models.PayoutStatus, from []models.PayoutStatus, reason *string, at time.Time) (*models.Payout, bool, error) {
	db := r.db.WithContext(ctx)

	var p models.Payout
	err := db.First(&p, "transfer_id = ?", transferID).Error
	if err != nil && payoutID != nil && translate(err) == ErrNotFound {
		err = db.First(&p, "id = ?", *payoutID).Error
	}
	if err != nil {
		return nil, false, translate(err)
	}

	updates := map[string]interface{}{"status": to, "updated_at": at}
	if p.TransferID == nil {
		updates["transfer_id"] = transferID
	}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	res := db.Model(&models.Payout{}).Where("id = ? AND status IN ?", p.ID, from).Updates(updates)
	changed, err := affected(res)
	if err != nil || !changed {
		return &p, false, err
	}

	p.Status = to
	p.TransferID = &transferID
	if reason != nil {
		p.FailureReason = reason
	}
	p.UpdatedAt = at
	return &p, true, nil
}

func (r *payoutRepository) ListPendingBefore(ctx context.Context, before time.Time, maxAttempts, limit int) ([]models.Payout, error) {
	var out []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ? AND attempts < ?", models.PayoutPending, before, maxAttempts).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

type refundRepository struct {
	db *gorm.DB
}

func (r *refundRepository) Create(ctx context.Context, rf *models.Refund) error {
	return translate(r.db.WithContext(ctx).Create(rf).Error)
}

func (r *refundRepository) FindByPayment(ctx context.Context, paymentID uuid.UUID) (*models.Refund, error) {
	var rf models.Refund
	if err := r.db.WithContext(ctx).First(&rf, "payment_id = ?", paymentID).Error; err != nil {
		return nil, translate(err)
	}
	return &rf, nil
}

func (r *refundRepository) ListQueued(ctx context.Context, limit int) ([]models.Refund, error) {
	var out []models.Refund
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RefundQueued).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *refundRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, processorRefundID string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     models.RefundSucceeded,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": nil,
		"updated_at": at,
	}
	if processorRefundID != "" {
		updates["processor_refund_id"] = processorRefundID
	}
	res := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, models.RefundQueued).
		Updates(updates)
	return affected(res)
}

func (r *refundRepository) RecordFailure(ctx context.Context, id uuid.UUID, errText string, terminal bool, at time.Time) error {
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": errText,
		"updated_at": at,
	}
	if terminal {
		updates["status"] = models.RefundFailed
	}
	return translate(r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, models.RefundQueued).
		Updates(updates).Error)
}
