package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func sendSuccess(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(Envelope{Success: true, Data: data})
}

func sendError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Envelope{Success: false, Error: message})
}

func sendErrorCode(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Envelope{Success: false, Error: message, Code: code})
}
