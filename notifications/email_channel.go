package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const brevoBaseURL = "https://api.brevo.com/v3"

type EmailConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	// BaseURL overrides the Brevo endpoint, mostly for tests.
	BaseURL string
}

type brevoChannel struct {
	client *resty.Client
	cfg    EmailConfig
	log    logrus.FieldLogger
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewEmailChannel returns the Brevo transactional email channel, or a noop one when
// the API key or sender is missing.
func NewEmailChannel(cfg EmailConfig, log logrus.FieldLogger) Channel {
	if cfg.APIKey == "" || cfg.SenderEmail == "" {
		log.Warn("email channel not configured, missing BREVO_API_KEY or EMAIL_SENDER")
		return NewNoopChannel(models.ChannelEmail)
	}
	if cfg.SenderName == "" {
		cfg.SenderName = cfg.SenderEmail
	}
	base := cfg.BaseURL
	if base == "" {
		base = brevoBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(10*time.Second).
		SetHeader("accept", "application/json").
		SetHeader("api-key", cfg.APIKey)
	return &brevoChannel{client: client, cfg: cfg, log: log}
}

func (c *brevoChannel) Name() models.Channel { return models.ChannelEmail }

func (c *brevoChannel) Deliver(ctx context.Context, msg Message) error {
	to := msg.Recipient.Email
	if to == "" || !strings.Contains(to, "@") {
		return fmt.Errorf("invalid recipient email: %q", to)
	}
	name := msg.Recipient.FullName
	if name == "" {
		name = to[:strings.Index(to, "@")]
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(brevoPayload{
			Sender:      map[string]string{"name": c.cfg.SenderName, "email": c.cfg.SenderEmail},
			To:          []map[string]string{{"email": to, "name": name}},
			Subject:     msg.Subject,
			HTMLContent: htmlBody(msg),
		}).
		Post("/smtp/email")
	if err != nil {
		return fmt.Errorf("send email via brevo: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode(), resp.String())
	}
	c.log.WithFields(logrus.Fields{"item_id": msg.ItemID, "type": msg.Type}).Debug("email accepted by brevo")
	return nil
}
