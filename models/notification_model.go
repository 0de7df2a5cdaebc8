package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelInApp    Channel = "in_app"
)

type NotificationType string

const (
	NotifyStatusChange    NotificationType = "status_change"
	NotifyNewRequest      NotificationType = "new_request"
	NotifyPaymentFailed   NotificationType = "payment_failed"
	NotifyPayoutSucceeded NotificationType = "payout_succeeded"
	NotifyPayoutFailed    NotificationType = "payout_failed"
	NotifyReminder        NotificationType = "reminder"
	NotifyRequesterUpdate NotificationType = "requester_update"
	NotifyDeadlineAlert   NotificationType = "deadline_alert"
	NotifyRefundIssued    NotificationType = "refund_issued"
)

type NotificationStatus string

const (
	NotificationPending    NotificationStatus = "pending"
	NotificationProcessing NotificationStatus = "processing"
	NotificationSent       NotificationStatus = "sent"
	NotificationFailed     NotificationStatus = "failed"
)

// MaxNotificationAttempts is the delivery attempt count after which an item fails for good.
const MaxNotificationAttempts = 3

type NotificationQueueItem struct {
	ID           uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RecipientID  *uuid.UUID         `gorm:"type:uuid;index" json:"recipient_id,omitempty"`
	RequestID    *uuid.UUID         `gorm:"type:uuid;index" json:"request_id,omitempty"`
	Type         NotificationType   `gorm:"size:40;not null;index" json:"type"`
	Channels     pq.StringArray     `gorm:"type:text[];not null" json:"channels"`
	// DeliveredChannels are the channels that already accepted the item; retries skip them.
	DeliveredChannels pq.StringArray `gorm:"type:text[]" json:"delivered_channels,omitempty"`
	Payload      datatypes.JSONMap  `gorm:"type:jsonb" json:"payload"`
	Status       NotificationStatus `gorm:"size:20;not null;default:'pending';index:idx_queue_due,priority:1" json:"status"`
	Attempts     int                `gorm:"not null;default:0" json:"attempts"`
	LastError    *string            `gorm:"type:text" json:"last_error,omitempty"`
	NextRetry    *time.Time         `json:"next_retry,omitempty"`
	ScheduledFor time.Time          `gorm:"not null;index:idx_queue_due,priority:2" json:"scheduled_for"`
	SentAt       *time.Time         `json:"sent_at,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NotificationQueueItem) TableName() string { return "notification_queue" }

func (n *NotificationQueueItem) ChannelList() []Channel {
	out := make([]Channel, 0, len(n.Channels))
	for _, c := range n.Channels {
		out = append(out, Channel(c))
	}
	return out
}

// PendingChannels lists the requested channels that have not accepted the item yet.
func (n *NotificationQueueItem) PendingChannels() []Channel {
	done := make(map[string]bool, len(n.DeliveredChannels))
	for _, c := range n.DeliveredChannels {
		done[c] = true
	}
	out := make([]Channel, 0, len(n.Channels))
	for _, c := range n.Channels {
		if !done[c] {
			out = append(out, Channel(c))
		}
	}
	return out
}

type InAppNotification struct {
	ID     uuid.UUID         `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	Type   NotificationType  `gorm:"size:40;not null" json:"type"`
	Title  string            `gorm:"size:255;not null" json:"title"`
	Body   string            `gorm:"type:text" json:"body"`
	Data   datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	ReadAt *time.Time        `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
