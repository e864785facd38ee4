package handlers

import (
	"errors"

	"github.com/MuhammadKashif10/onlyif-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return sendErrorCode(c, fiber.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, services.ErrInvalidStateTransition):
		return sendErrorCode(c, fiber.StatusConflict, "invalid_state_transition", err.Error())
	case errors.Is(err, services.ErrSellerRestricted):
		return sendErrorCode(c, fiber.StatusForbidden, "seller_restricted", err.Error())
	case errors.Is(err, services.ErrForbidden):
		return sendErrorCode(c, fiber.StatusForbidden, "forbidden", "Forbidden")
	case errors.Is(err, services.ErrNotificationNotFound):
		return sendErrorCode(c, fiber.StatusNotFound, "not_found", "Notification not found")
	case errors.Is(err, services.ErrConversationNotFound):
		return sendErrorCode(c, fiber.StatusNotFound, "not_found", "Conversation not found")
	case errors.Is(err, services.ErrUserNotFound):
		return sendErrorCode(c, fiber.StatusNotFound, "not_found", "User not found")
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
		}).Error("request failed")
		return sendErrorCode(c, fiber.StatusInternalServerError, "internal_error", "Failed to process request")
	}
}
