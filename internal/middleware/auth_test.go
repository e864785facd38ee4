package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MuhammadKashif10/onlyif-backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "secret"

func newAuthApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/protected", handler, func(c *fiber.Ctx) error {
		userID, _ := c.Locals(LocalUserID).(uuid.UUID)
		role, _ := c.Locals(LocalRole).(string)
		return c.JSON(fiber.Map{"userId": userID.String(), "role": role})
	})
	return app
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAuthRequiredRejectsMissingHeader(t *testing.T) {
	app := newAuthApp(AuthRequired(testSecret))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	body := decodeError(t, resp)
	assert.False(t, body.Success)
	assert.Equal(t, "Missing authorization header", body.Error)
}

func TestAuthRequiredRejectsMalformedHeader(t *testing.T) {
	app := newAuthApp(AuthRequired(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequiredRejectsNonUUIDSubject(t *testing.T) {
	app := newAuthApp(AuthRequired(testSecret))
	token, err := utils.GenerateToken("42", "buyer", testSecret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequiredSetsLocals(t *testing.T) {
	app := newAuthApp(AuthRequired(testSecret))
	userID := uuid.New()
	token, err := utils.GenerateToken(userID.String(), "agent", testSecret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, userID.String(), body["userId"])
	assert.Equal(t, "agent", body["role"])
}

func TestQueryTokenAuth(t *testing.T) {
	app := newAuthApp(QueryTokenAuth(testSecret))
	token, err := utils.GenerateToken(uuid.NewString(), "buyer", testSecret)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
