// Package payments talks to the payment processor: intents for intake, transfers for payouts
// and refunds. Callers reconcile through webhooks, so every call carries an idempotency key.
package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClientSecretTokenUsed stands in for a client secret when a token covered the whole price.
const ClientSecretTokenUsed = "token_used"

type IntentParams struct {
	PaymentID uuid.UUID
	RequestID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type TransferParams struct {
	PayoutID    uuid.UUID
	FulfillerID uuid.UUID
	Destination string
	Amount      decimal.Decimal
	Currency    string
}

type RefundParams struct {
	RefundID uuid.UUID
	IntentID string
	Amount   decimal.Decimal
	Currency string
	Reason   string
}

type Gateway interface {
	CreateIntent(ctx context.Context, p IntentParams) (*Intent, error)
	IntentSecret(ctx context.Context, intentID string) (string, error)
	Transfer(ctx context.Context, p TransferParams) (string, error)
	Refund(ctx context.Context, p RefundParams) (string, error)
	// PayeeReady reports whether the connected account can receive transfers.
	PayeeReady(ctx context.Context, accountID string) (bool, error)
}
