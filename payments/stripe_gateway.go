package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/transfer"
)

// StripeGateway is the Gateway backed by stripe. It sets the package-level stripe key once.
type StripeGateway struct {
	log logrus.FieldLogger
}

func NewStripeGateway(secretKey string, log logrus.FieldLogger) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{log: log}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(p.Amount, p.Currency)),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("payment_id", p.PaymentID.String())
	params.AddMetadata("request_id", p.RequestID.String())
	params.SetIdempotencyKey("intent-" + p.PaymentID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, describe("create payment intent", err)
	}
	g.log.WithFields(logrus.Fields{"payment_id": p.PaymentID, "intent_id": pi.ID}).Info("payment intent created")
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) IntentSecret(ctx context.Context, intentID string) (string, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return "", describe("fetch payment intent", err)
	}
	return pi.ClientSecret, nil
}

func (g *StripeGateway) Transfer(ctx context.Context, p TransferParams) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(ToMinorUnits(p.Amount, p.Currency)),
		Currency:    stripe.String(strings.ToLower(p.Currency)),
		Destination: stripe.String(p.Destination),
	}
	params.Context = ctx
	params.AddMetadata("payout_id", p.PayoutID.String())
	params.AddMetadata("fulfiller_id", p.FulfillerID.String())
	params.SetIdempotencyKey("transfer-" + p.PayoutID.String())

	t, err := transfer.New(params)
	if err != nil {
		return "", describe("create transfer", err)
	}
	g.log.WithFields(logrus.Fields{"payout_id": p.PayoutID, "transfer_id": t.ID}).Info("transfer created")
	return t.ID, nil
}

func (g *StripeGateway) Refund(ctx context.Context, p RefundParams) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.IntentID),
		Amount:        stripe.Int64(ToMinorUnits(p.Amount, p.Currency)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("refund_id", p.RefundID.String())
	if p.Reason != "" {
		params.AddMetadata("reason", p.Reason)
	}
	params.SetIdempotencyKey("refund-" + p.RefundID.String())

	r, err := refund.New(params)
	if err != nil {
		return "", describe("create refund", err)
	}
	g.log.WithFields(logrus.Fields{"refund_id": p.RefundID, "processor_refund_id": r.ID}).Info("refund created")
	return r.ID, nil
}

func (g *StripeGateway) PayeeReady(ctx context.Context, accountID string) (bool, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return false, nil
		}
		return false, describe("fetch connected account", err)
	}
	return acct.PayoutsEnabled, nil
}

// describe keeps the stripe error code in the message so it lands in failure_reason columns.
func describe(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code != "" {
		return fmt.Errorf("%s: %s: %w", op, stripeErr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
