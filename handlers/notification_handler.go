package handlers

import (
	"time"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	inbox repository.InAppRepository
}

func NewNotificationHandler(inbox repository.InAppRepository) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	actor, err := identity(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, err := h.inbox.ListForUser(c.UserContext(), actor.UserID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": items, "limit": limit, "offset": offset})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := identity(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	ok, err := h.inbox.MarkRead(c.UserContext(), id, actor.UserID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.NotFound, "notification %s not found or already read", id)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
