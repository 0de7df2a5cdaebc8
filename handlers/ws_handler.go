package handlers

import (
	"fmt"

	"github.com/anjiri1684/letter_broker/middleware"
	"github.com/anjiri1684/letter_broker/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ServeWs authenticates the socket with a first {"type":"auth","token":...} message and
// then keeps it registered on the hub until the client goes away.
func ServeWs(hub *websocket.Hub, secret string, log logrus.FieldLogger) func(*websocketcontrib.Conn) {
	return func(c *websocketcontrib.Conn) {
		var auth authMessage
		if err := c.ReadJSON(&auth); err != nil || auth.Type != "auth" {
			_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
			_ = c.Close()
			return
		}
		token, err := jwt.Parse(auth.Token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
			_ = c.Close()
			return
		}
		id, err := middleware.IdentityFromClaims(token.Claims)
		if err != nil {
			_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
			_ = c.Close()
			return
		}

		hub.Register(id.UserID, c)
		defer func() {
			hub.Unregister(id.UserID, c)
			_ = c.Close()
		}()
		_ = c.WriteJSON(fiber.Map{"type": "ready"})

		// Clients only listen; reading keeps the connection alive until it closes.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if !websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
					log.WithError(err).WithField("user_id", id.UserID).Debug("websocket read error")
				}
				return
			}
		}
	}
}
