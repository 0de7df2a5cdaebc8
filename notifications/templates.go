package notifications

import (
	"fmt"
	"html"
	"strings"

	"github.com/anjiri1684/letter_broker/models"
)

type template struct {
	subject string
	body    func(p map[string]interface{}) string
}

var templates = map[models.NotificationType]template{
	models.NotifyNewRequest: {
		subject: "New recommendation letter request",
		body: func(p map[string]interface{}) string {
			return fmt.Sprintf("You have a new %s recommendation request due %s. Please accept or decline it.",
				field(p, "purpose"), field(p, "deadline"))
		},
	},
	models.NotifyStatusChange: {
		subject: "Your request was updated",
		body: func(p map[string]interface{}) string {
			msg := fmt.Sprintf("Request %s moved from %s to %s.", field(p, "request_id"), field(p, "from_status"), field(p, "status"))
			if r := field(p, "reason"); r != "" {
				msg += " Reason: " + r
			}
			return msg
		},
	},
	models.NotifyPaymentFailed: {
		subject: "Your payment did not go through",
		body: func(p map[string]interface{}) string {
			return fmt.Sprintf("The payment for request %s failed: %s. You can try again from the request page.",
				field(p, "request_id"), field(p, "reason"))
		},
	},
	models.NotifyPayoutSucceeded: {
		subject: "Your payout is on its way",
		body: func(p map[string]interface{}) string {
			return fmt.Sprintf("A payout of %s %s has been paid to your account.", field(p, "amount"), strings.ToUpper(field(p, "currency")))
		},
	},
	models.NotifyPayoutFailed: {
		subject: "Your payout failed",
		body: func(p map[string]interface{}) string {
			return fmt.Sprintf("The payout of %s %s could not be completed. Please check your payout account details.",
				field(p, "amount"), strings.ToUpper(field(p, "currency")))
		},
	},
	models.NotifyReminder: {
		subject: "Reminder: a recommendation request is waiting",
		body: func(p map[string]interface{}) string {
			return fmt.Sprintf("A %s recommendation request has been waiting for %s days. It will be cancelled automatically after 14 days.",
				field(p, "purpose"), field(p, "days_pending"))
		},
	},
	models.NotifyRequesterUpdate: {
		subject: "Update on your recommendation request",
		body: func(p map[string]interface{}) string {
			if field(p, "status") == string(models.RequestAutoCancelled) {
				msg := "Your request was cancelled because no recommender responded within 14 days."
				if a := field(p, "refund_amount"); a != "" {
					msg += fmt.Sprintf(" A refund of %s %s has been queued.", a, strings.ToUpper(field(p, "currency")))
				}
				return msg
			}
			return fmt.Sprintf("Your request has been waiting for %s days. We have reminded your recommenders.", field(p, "days_pending"))
		},
	},
	models.NotifyDeadlineAlert: {
		subject: "Recommendation deadline approaching",
		body: func(p map[string]interface{}) string {
			return fmt.Sprintf("The %s recommendation for request %s is due on %s.", field(p, "purpose"), field(p, "request_id"), field(p, "deadline"))
		},
	},
	models.NotifyRefundIssued: {
		subject: "Your refund has been issued",
		body: func(p map[string]interface{}) string {
			return fmt.Sprintf("A refund of %s %s was issued for request %s. Reason: %s",
				field(p, "amount"), strings.ToUpper(field(p, "currency")), field(p, "request_id"), field(p, "reason"))
		},
	},
}

// Render turns a queue item's type and payload into a subject and a plain text body.
func Render(typ models.NotificationType, payload map[string]interface{}) (string, string) {
	t, ok := templates[typ]
	if !ok {
		return "Notification", fmt.Sprintf("You have a new %s notification.", typ)
	}
	return t.subject, t.body(payload)
}

func field(p map[string]interface{}, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func htmlBody(msg Message) string {
	return fmt.Sprintf("<h2>%s</h2><p>%s</p>", html.EscapeString(msg.Subject), html.EscapeString(msg.Body))
}

func smsBody(msg Message) string {
	return msg.Subject + ": " + msg.Body
}
