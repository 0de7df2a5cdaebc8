package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Payout struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	FulfillerID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_payouts_fulfiller_payment,priority:1" json:"fulfiller_id"`
	PaymentID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_payouts_fulfiller_payment,priority:2;index" json:"payment_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	Status        PayoutStatus    `gorm:"size:20;not null;default:'pending'" json:"status"`
	TransferID    *string         `gorm:"size:255;unique" json:"transfer_id,omitempty"`
	FailureReason *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	Attempts      int             `gorm:"not null;default:0" json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
