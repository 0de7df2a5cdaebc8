package handlers

import (
	"errors"

	"github.com/anjiri1684/letter_broker/errs"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

var statusByKind = map[errs.Kind]int{
	errs.NotFound:           fiber.StatusNotFound,
	errs.Forbidden:          fiber.StatusForbidden,
	errs.InvalidTransition:  fiber.StatusConflict,
	errs.InvalidToken:       fiber.StatusUnprocessableEntity,
	errs.NotEligible:        fiber.StatusConflict,
	errs.NotAssigned:        fiber.StatusForbidden,
	errs.AlreadyPaid:        fiber.StatusConflict,
	errs.PayeeNotConfigured: fiber.StatusUnprocessableEntity,
	errs.ProcessorError:     fiber.StatusBadGateway,
	errs.InvalidSignature:   fiber.StatusBadRequest,
	errs.ValidationError:    fiber.StatusBadRequest,
}

// ErrorHandler renders every error returned by a handler as the common JSON error body.
func ErrorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		kind := ""
		msg := "internal server error"

		var fe *fiber.Error
		var de *errs.Error
		switch {
		case errors.As(err, &de):
			kind = string(de.Kind)
			msg = de.Error()
			if status, ok := statusByKind[de.Kind]; ok {
				code = status
			}
		case errors.As(err, &fe):
			code = fe.Code
			msg = fe.Message
		}

		entry := log.WithFields(logrus.Fields{"path": c.Path(), "method": c.Method(), "status": code})
		if code >= fiber.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.WithError(err).Debug("request rejected")
		}

		body := fiber.Map{"status": "error", "code": code, "message": msg}
		if kind != "" {
			body["kind"] = kind
		}
		return c.Status(code).JSON(body)
	}
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errs.New(errs.ValidationError, "Cannot parse JSON")
	}
	if err := validate.Struct(out); err != nil {
		return errs.Wrap(errs.ValidationError, err, "invalid request body")
	}
	return nil
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, errs.New(errs.ValidationError, "invalid %s", name)
	}
	return id, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, errs.New(errs.ValidationError, "invalid id %q", r)
		}
		out = append(out, id)
	}
	return out, nil
}
