package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Refund struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	PaymentID         uuid.UUID       `gorm:"type:uuid;not null;unique" json:"payment_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Reason            string          `gorm:"type:text;not null" json:"reason"`
	Status            RefundStatus    `gorm:"size:20;not null;default:'queued';index" json:"status"`
	ProcessorRefundID *string         `gorm:"size:255" json:"processor_refund_id,omitempty"`
	Attempts          int             `gorm:"not null;default:0" json:"attempts"`
	LastError         *string         `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
