package models

import (
	"time"

	"github.com/google/uuid"
)

// PayeeAccount links a fulfiller to the connected processor account receiving transfers.
type PayeeAccount struct {
	FulfillerID     uuid.UUID `gorm:"type:uuid;primary_key" json:"fulfiller_id"`
	StripeAccountID string    `gorm:"size:255;not null" json:"stripe_account_id"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Contact is the addressing view of a user profile.
type Contact struct {
	UserID   uuid.UUID `gorm:"type:uuid;primary_key" json:"user_id"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	Email    string    `gorm:"size:255" json:"email"`
	Phone    string    `gorm:"size:32" json:"phone"`
	WhatsApp string    `gorm:"size:32" json:"whatsapp"`

	UpdatedAt time.Time `json:"updated_at"`
}
