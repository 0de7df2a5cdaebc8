package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Action   string    `gorm:"size:100;not null;index" json:"action"`
	Entity   string    `gorm:"size:50;not null" json:"entity"`
	EntityID string    `gorm:"size:255;not null;index" json:"entity_id"`
	Detail   string    `gorm:"type:text" json:"detail"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
