package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MuhammadKashif10/onlyif-backend/internal/middleware"
	"github.com/MuhammadKashif10/onlyif-backend/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

// actorFromLocals returns the caller set by middleware.AuthRequired.
func actorFromLocals(c *fiber.Ctx) (services.Actor, bool) {
	userID, ok := c.Locals(middleware.LocalUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return services.Actor{}, false
	}
	role, _ := c.Locals(middleware.LocalRole).(string)
	return services.Actor{ID: userID, Role: role}, true
}

// parseBody decodes and validates a JSON body. The error text is safe to
// return to the client.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return errors.New(describeValidation(err))
	}
	return nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return sendErrorCode(c, fiber.StatusBadRequest, "invalid_input", message)
}

func describeValidation(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return "Invalid request"
	}

	parts := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		if fieldErr.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fieldErr.Field(), fieldErr.Tag(), fieldErr.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fieldErr.Field(), fieldErr.Tag()))
	}
	return strings.Join(parts, "; ")
}

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
