package middleware

import (
	"strings"

	"github.com/MuhammadKashif10/onlyif-backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Error: message})
}

// AuthRequired verifies the bearer token and stores the caller's id and role
// in the request locals.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Missing authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return unauthorized(c, "Invalid authorization header format")
		}

		return authenticate(c, parts[1], secret)
	}
}

// QueryTokenAuth is AuthRequired for clients that cannot set headers, such
// as browser WebSocket handshakes. The token is read from ?token=.
func QueryTokenAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := strings.TrimSpace(c.Query("token"))
		if tokenString == "" {
			return unauthorized(c, "Missing token")
		}
		return authenticate(c, tokenString, secret)
	}
}

func authenticate(c *fiber.Ctx, tokenString, secret string) error {
	claims, err := utils.ValidateToken(tokenString, secret)
	if err != nil {
		logrus.WithField("path", c.Path()).WithError(err).Debug("rejecting token")
		return unauthorized(c, "Invalid or expired token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return unauthorized(c, "Invalid or expired token")
	}

	c.Locals(LocalUserID, userID)
	c.Locals(LocalRole, claims.Role)

	return c.Next()
}
