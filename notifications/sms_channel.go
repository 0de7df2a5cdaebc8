package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/kavenegar/kavenegar-go"
	"github.com/sirupsen/logrus"
)

type SMSConfig struct {
	Provider string
	APIKey   string
	Sender   string
}

// NewSMSChannel picks an SMS implementation by provider. Only "kavenegar" is supported;
// anything else, or a missing key, yields a noop channel.
func NewSMSChannel(cfg SMSConfig, log logrus.FieldLogger) Channel {
	switch strings.ToLower(cfg.Provider) {
	case "kavenegar":
		if cfg.APIKey == "" {
			log.Warn("SMS_PROVIDER is kavenegar but SMS_API_KEY is not set, using noop channel")
			return NewNoopChannel(models.ChannelSMS)
		}
		return &kavenegarChannel{api: kavenegar.New(cfg.APIKey), sender: cfg.Sender}
	case "":
		log.Warn("SMS_PROVIDER is not set, using noop channel")
	default:
		log.WithField("provider", cfg.Provider).Warn("unknown SMS_PROVIDER, using noop channel")
	}
	return NewNoopChannel(models.ChannelSMS)
}

type kavenegarChannel struct {
	api    *kavenegar.Kavenegar
	sender string
}

func (c *kavenegarChannel) Name() models.Channel { return models.ChannelSMS }

func (c *kavenegarChannel) Deliver(ctx context.Context, msg Message) error {
	if msg.Recipient.Phone == "" {
		return fmt.Errorf("recipient has no phone number")
	}
	res, err := c.api.Message.Send(c.sender, []string{msg.Recipient.Phone}, smsBody(msg), nil)
	if err != nil {
		switch err := err.(type) {
		case *kavenegar.APIError:
			return fmt.Errorf("kavenegar API error: %w", err)
		case *kavenegar.HTTPError:
			return fmt.Errorf("kavenegar HTTP error: %w", err)
		default:
			return fmt.Errorf("send sms: %w", err)
		}
	}
	if len(res) == 0 {
		return fmt.Errorf("no response entries from kavenegar")
	}
	return nil
}
