package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Payment struct {
	ID               uuid.UUID           `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RequesterID      uuid.UUID           `gorm:"type:uuid;not null;index" json:"requester_id"`
	RequestID        uuid.UUID           `gorm:"type:uuid;not null;index" json:"request_id"`
	Amount           decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string              `gorm:"size:3;not null" json:"currency"`
	Status           PaymentStatus       `gorm:"size:20;not null" json:"status"`
	IntentID         *string             `gorm:"size:255;unique" json:"intent_id,omitempty"`
	ReceiptReference *string             `gorm:"size:255" json:"receipt_reference,omitempty"`
	FailureReason    *string             `gorm:"type:text" json:"failure_reason,omitempty"`
	RefundAmount     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"refund_amount"`
	RefundReason     *string             `gorm:"type:text" json:"refund_reason,omitempty"`
	TokenID          *uuid.UUID          `gorm:"type:uuid" json:"token_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
