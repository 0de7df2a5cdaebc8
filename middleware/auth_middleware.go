package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/anjiri1684/letter_broker/models"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const identityKey = "identity"

// Protected validates the bearer JWT issued by the auth service and stores the caller's
// identity in the request locals.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:     []byte(secret),
		SuccessHandler: storeIdentity,
		ErrorHandler:   jwtError,
	})
}

func storeIdentity(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return unauthorized(c, "Invalid or expired JWT")
	}
	id, err := IdentityFromClaims(token.Claims)
	if err != nil {
		return unauthorized(c, err.Error())
	}
	c.Locals(identityKey, id)
	return c.Next()
}

// IdentityFromClaims reads user_id and role from token claims.
func IdentityFromClaims(claims jwt.Claims) (models.Identity, error) {
	mc, ok := claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "unexpected claims")
	}
	rawID, _ := mc["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "token has no valid user_id")
	}
	rawRole, _ := mc["role"].(string)
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "token has no valid role")
	}
	return models.Identity{UserID: userID, Role: role}, nil
}

// CurrentIdentity returns the identity stored by Protected.
func CurrentIdentity(c *fiber.Ctx) (models.Identity, bool) {
	id, ok := c.Locals(identityKey).(models.Identity)
	return id, ok
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "code": fiber.StatusBadRequest, "message": "Missing or malformed JWT"})
	}
	return unauthorized(c, "Invalid or expired JWT")
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "code": fiber.StatusUnauthorized, "message": msg})
}

func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := CurrentIdentity(c)
		if !ok || !id.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"code":    fiber.StatusForbidden,
				"message": "Forbidden: Admin access required",
			})
		}
		return c.Next()
	}
}

// SchedulerSecret guards the job trigger endpoints with a shared bearer secret.
// An empty secret rejects every call.
func SchedulerSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimPrefix(auth, "Bearer ")
		if secret == "" || token == auth || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return unauthorized(c, "invalid scheduler credentials")
		}
		return c.Next()
	}
}
