package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records every verified processor event so replays are detected by id.
type WebhookEvent struct {
	ID              uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ProviderEventID string             `gorm:"size:255;not null;unique" json:"provider_event_id"`
	Type            string             `gorm:"size:100;not null;index" json:"type"`
	Status          WebhookEventStatus `gorm:"size:20;not null" json:"status"`
	Error           *string            `gorm:"type:text" json:"error,omitempty"`
	Attempts        int                `gorm:"not null;default:1" json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
