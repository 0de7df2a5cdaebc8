package services

import (
	"context"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Auditor is the fire-and-forget audit sink.
type Auditor interface {
	Record(ctx context.Context, action, entity, entityID, detail string)
}

type StoreAuditor struct {
	store repository.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewStoreAuditor(store repository.Store, log logrus.FieldLogger) *StoreAuditor {
	return &StoreAuditor{store: store, log: log, now: time.Now}
}

func (a *StoreAuditor) Record(ctx context.Context, action, entity, entityID, detail string) {
	entry := &models.AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Detail:    detail,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.Audit().Write(ctx, entry); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"action":    action,
			"entity":    entity,
			"entity_id": entityID,
		}).Error("audit write failed")
	}
}
