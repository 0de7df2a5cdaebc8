package notifications

import (
	"context"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/anjiri1684/letter_broker/models"
	"github.com/google/uuid"
)

// Message is one rendered notification addressed to a single recipient.
type Message struct {
	ItemID    uuid.UUID
	Type      models.NotificationType
	Recipient models.Contact
	Subject   string
	Body      string
	Data      map[string]interface{}
}

// Channel delivers a message over one medium.
type Channel interface {
	Name() models.Channel
	Deliver(ctx context.Context, msg Message) error
}

type noopChannel struct {
	name models.Channel
}

// NewNoopChannel stands in for a medium that has no credentials configured.
func NewNoopChannel(name models.Channel) Channel {
	return &noopChannel{name: name}
}

func (c *noopChannel) Name() models.Channel { return c.name }

func (c *noopChannel) Deliver(ctx context.Context, msg Message) error {
	return errs.ErrChannelNotConfigured
}
