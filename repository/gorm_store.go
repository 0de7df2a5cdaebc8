package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// GormStore is the postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Requests() RequestRepository           { return &requestRepository{db: s.db} }
func (s *GormStore) Payments() PaymentRepository           { return &paymentRepository{db: s.db} }
func (s *GormStore) Payouts() PayoutRepository             { return &payoutRepository{db: s.db} }
func (s *GormStore) Refunds() RefundRepository             { return &refundRepository{db: s.db} }
func (s *GormStore) Tokens() TokenRepository               { return &tokenRepository{db: s.db} }
func (s *GormStore) Notifications() NotificationRepository { return &notificationRepository{db: s.db} }
func (s *GormStore) InApp() InAppRepository                { return &inAppRepository{db: s.db} }
func (s *GormStore) Events() EventRepository               { return &eventRepository{db: s.db} }
func (s *GormStore) Audit() AuditRepository                { return &auditRepository{db: s.db} }
func (s *GormStore) Directory() DirectoryRepository        { return &directoryRepository{db: s.db} }

func (s *GormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// translate maps gorm sentinels onto the repository ones. It relies on gorm.Config.TranslateError.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func affected(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}
