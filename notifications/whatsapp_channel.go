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

const whatsAppBaseURL = "https://graph.facebook.com/v19.0"

type WhatsAppConfig struct {
	Token   string
	PhoneID string
	BaseURL string
}

type whatsAppChannel struct {
	client  *resty.Client
	phoneID string
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

// NewWhatsAppChannel sends plain text messages through the WhatsApp Cloud API.
func NewWhatsAppChannel(cfg WhatsAppConfig, log logrus.FieldLogger) Channel {
	if cfg.Token == "" || cfg.PhoneID == "" {
		log.Warn("whatsapp channel not configured, missing WHATSAPP_TOKEN or WHATSAPP_PHONE_ID")
		return NewNoopChannel(models.ChannelWhatsApp)
	}
	base := cfg.BaseURL
	if base == "" {
		base = whatsAppBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(10 * time.Second).
		SetAuthToken(cfg.Token)
	return &whatsAppChannel{client: client, phoneID: cfg.PhoneID}
}

func (c *whatsAppChannel) Name() models.Channel { return models.ChannelWhatsApp }

func (c *whatsAppChannel) Deliver(ctx context.Context, msg Message) error {
	to := msg.Recipient.WhatsApp
	if to == "" {
		to = msg.Recipient.Phone
	}
	if to == "" {
		return fmt.Errorf("recipient has no whatsapp number")
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(whatsAppPayload{
			MessagingProduct: "whatsapp",
			To:               strings.TrimPrefix(to, "+"),
			Type:             "text",
			Text:             whatsAppText{Body: smsBody(msg)},
		}).
		Post("/" + c.phoneID + "/messages")
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("whatsapp returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
