package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Request struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RequesterID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"requester_id"`
	FulfillerIDs pq.StringArray `gorm:"type:text[];not null" json:"fulfiller_ids"`
	Purpose      Purpose        `gorm:"size:20;not null" json:"purpose"`
	Status       RequestStatus  `gorm:"size:30;not null;default:'pending_acceptance';index" json:"status"`
	StatusReason *string        `gorm:"type:text" json:"status_reason,omitempty"`
	Deadline     time.Time      `gorm:"not null;index" json:"deadline"`
	PaymentID    *uuid.UUID     `gorm:"type:uuid" json:"payment_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Request) HasFulfiller(id uuid.UUID) bool {
	for _, f := range r.FulfillerIDs {
		if f == id.String() {
			return true
		}
	}
	return false
}

// Fulfillers returns the parsed fulfiller ids, skipping malformed entries.
func (r *Request) Fulfillers() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.FulfillerIDs))
	for _, f := range r.FulfillerIDs {
		if id, err := uuid.Parse(f); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
