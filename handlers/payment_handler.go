package handlers

import (
	"github.com/anjiri1684/letter_broker/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PaymentHandler struct {
	payments *services.PaymentService
	webhooks *services.WebhookService
}

func NewPaymentHandler(payments *services.PaymentService, webhooks *services.WebhookService) *PaymentHandler {
	return &PaymentHandler{payments: payments, webhooks: webhooks}
}

type initiateBody struct {
	RequestID    string   `json:"request_id" validate:"required,uuid"`
	FulfillerIDs []string `json:"fulfiller_ids" validate:"required,min=1,dive,uuid"`
	TokenCode    string   `json:"token_code" validate:"max=64"`
}

func (h *PaymentHandler) Initiate(c *fiber.Ctx) error {
	actor, err := identity(c)
	if err != nil {
		return err
	}
	var body initiateBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	fulfillers, err := parseUUIDs(body.FulfillerIDs)
	if err != nil {
		return err
	}
	res, err := h.payments.Initiate(c.UserContext(), services.InitiateInput{
		RequesterID:  actor.UserID,
		RequestID:    uuid.MustParse(body.RequestID),
		FulfillerIDs: fulfillers,
		TokenCode:    body.TokenCode,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Webhook acknowledges every verified event, including ones that failed to apply.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	if err := h.webhooks.Handle(c.UserContext(), c.Body(), c.Get("Stripe-Signature")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true})
}
