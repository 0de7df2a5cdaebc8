package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type tokenRepository struct {
	db *gorm.DB
}

func (r *tokenRepository) Create(ctx context.Context, t *models.Token) error {
	t.Code = models.NormalizeTokenCode(t.Code)
	return translate(r.db.WithContext(ctx).Create(t).Error)
}

func (r *tokenRepository) FindByCode(ctx context.Context, code string) (*models.Token, error) {
	var t models.Token
	if err := r.db.WithContext(ctx).First(&t, "code = ?", models.NormalizeTokenCode(code)).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *tokenRepository) Redeem(ctx context.Context, code string, userID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Token{}).
		Where("code = ? AND used_by IS NULL AND expiry_date >= ?", models.NormalizeTokenCode(code), models.StartOfDay(now)).
		Updates(map[string]interface{}{
			"used_by":   userID,
			"used_date": now,
		})
	return affected(res)
}

func (r *tokenRepository) DeleteExpiredUnused(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("used_by IS NULL AND expiry_date < ?", models.StartOfDay(before)).
		Delete(&models.Token{})
	return res.RowsAffected, translate(res.Error)
}
