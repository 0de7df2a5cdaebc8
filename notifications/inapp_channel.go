package notifications

import (
	"context"
	"fmt"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/anjiri1684/letter_broker/repository"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Pusher forwards a value to the live connections of a user and reports how many got it.
type Pusher interface {
	Push(userID uuid.UUID, v interface{}) int
}

type inAppChannel struct {
	store  repository.InAppRepository
	pusher Pusher
}

// NewInAppChannel stores the notification for the user's inbox and pushes it to open sockets.
// pusher may be nil.
func NewInAppChannel(store repository.InAppRepository, pusher Pusher) Channel {
	return &inAppChannel{store: store, pusher: pusher}
}

func (c *inAppChannel) Name() models.Channel { return models.ChannelInApp }

func (c *inAppChannel) Deliver(ctx context.Context, msg Message) error {
	if msg.Recipient.UserID == uuid.Nil {
		return fmt.Errorf("in-app notification has no recipient")
	}
	n := &models.InAppNotification{
		UserID: msg.Recipient.UserID,
		Type:   msg.Type,
		Title:  msg.Subject,
		Body:   msg.Body,
		Data:   datatypes.JSONMap(msg.Data),
	}
	if err := c.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store in-app notification: %w", err)
	}
	if c.pusher != nil {
		c.pusher.Push(n.UserID, n)
	}
	return nil
}
