package database

import (
	"fmt"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// partialIndexes are the constraints AutoMigrate cannot express.
var partialIndexes = []string{
	// One live payment per request: pending or succeeded.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_open_request ON payments (request_id) WHERE status IN ('pending', 'succeeded')`,
	`CREATE INDEX IF NOT EXISTS idx_payouts_pending ON payouts (created_at) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_refunds_queued ON refunds (created_at) WHERE status = 'queued'`,
}

func ConnectDB(dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("database connected")
	return db, nil
}

func Migrate(db *gorm.DB, log logrus.FieldLogger) error {
	err := db.AutoMigrate(
		&models.Request{},
		&models.Payment{},
		&models.Payout{},
		&models.Refund{},
		&models.Token{},
		&models.NotificationQueueItem{},
		&models.InAppNotification{},
		&models.WebhookEvent{},
		&models.AuditLog{},
		&models.PayeeAccount{},
		&models.Contact{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	log.Info("database migration successful")
	return nil
}
