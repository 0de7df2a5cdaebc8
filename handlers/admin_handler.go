package handlers

import (
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	refunds    *services.RefundService
	settlement *services.SettlementService
	tokens     *services.TokenService
}

func NewAdminHandler(refunds *services.RefundService, settlement *services.SettlementService, tokens *services.TokenService) *AdminHandler {
	return &AdminHandler{refunds: refunds, settlement: settlement, tokens: tokens}
}

type refundBody struct {
	Reason string           `json:"reason" validate:"required,max=1000"`
	Amount *decimal.Decimal `json:"amount"`
}

func (h *AdminHandler) Refund(c *fiber.Ctx) error {
	paymentID, err := uuidParam(c, "paymentId")
	if err != nil {
		return err
	}
	var body refundBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	refund, err := h.refunds.Refund(c.UserContext(), paymentID, body.Reason, body.Amount)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(refund)
}

func (h *AdminHandler) Payout(c *fiber.Ctx) error {
	paymentID, err := uuidParam(c, "paymentId")
	if err != nil {
		return err
	}
	fulfillerID, err := uuidParam(c, "fulfillerId")
	if err != nil {
		return err
	}
	payout, err := h.settlement.Payout(c.UserContext(), fulfillerID, paymentID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(payout)
}

type issueTokensBody struct {
	Count      int    `json:"count" validate:"required,min=1"`
	Value      int    `json:"value" validate:"required,min=1"`
	ExpiryDate string `json:"expiry_date" validate:"required"`
}

func (h *AdminHandler) IssueTokens(c *fiber.Ctx) error {
	var body issueTokensBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	expiry, err := time.Parse("2006-01-02", body.ExpiryDate)
	if err != nil {
		return errs.New(errs.ValidationError, "expiry_date must be YYYY-MM-DD")
	}
	tokens, err := h.tokens.Issue(c.UserContext(), services.IssueTokensInput{
		Count:      body.Count,
		Value:      body.Value,
		ExpiryDate: expiry,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": tokens})
}
