package handlers

import (
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/services"
	"github.com/gofiber/fiber/v2"
)

type RequestHandler struct {
	requests *services.RequestService
}

func NewRequestHandler(requests *services.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

type createRequestBody struct {
	Purpose      string    `json:"purpose" validate:"required,oneof=school scholarship job"`
	FulfillerIDs []string  `json:"fulfiller_ids" validate:"required,min=1,dive,uuid"`
	Deadline     time.Time `json:"deadline" validate:"required"`
}

type transitionBody struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=1000"`
}

func identity(c *fiber.Ctx) (models.Identity, error) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "missing identity")
	}
	return id, nil
}

func (h *RequestHandler) Create(c *fiber.Ctx) error {
	actor, err := identity(c)
	if err != nil {
		return err
	}
	var body createRequestBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	fulfillers, err := parseUUIDs(body.FulfillerIDs)
	if err != nil {
		return err
	}
	req, err := h.requests.Create(c.UserContext(), actor, services.CreateRequestInput{
		Purpose:      models.Purpose(body.Purpose),
		FulfillerIDs: fulfillers,
		Deadline:     body.Deadline,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

func (h *RequestHandler) Get(c *fiber.Ctx) error {
	actor, err := identity(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "requestId")
	if err != nil {
		return err
	}
	req, err := h.requests.Get(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(req)
}

func (h *RequestHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := identity(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "requestId")
	if err != nil {
		return err
	}
	var body transitionBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	target := models.RequestStatus(body.Status)
	if !target.Valid() {
		return errs.New(errs.ValidationError, "unknown status %q", body.Status)
	}
	req, err := h.requests.Transition(c.UserContext(), id, actor, target, body.Reason)
	if err != nil {
		return err
	}
	return c.JSON(req)
}
