package serverutils

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"propman-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payBody struct {
	Phone string `validate:"required,msisdn"`
	Type  string `validate:"required"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(payBody{Phone: "0712 345 678", Type: "Silver"}))
	assert.NoError(t, ValidateRequest(payBody{Phone: "+254112345678", Type: "Silver"}))

	err := ValidateRequest(payBody{Phone: "12345"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "msisdn", ve.Fields["Phone"])
	assert.Equal(t, "required", ve.Fields["Type"])
}

func newApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(logger.NewNopLogger()))
	app.Get("/me", JwtMiddleware(secret), func(ctx *fiber.Ctx) error {
		id, err := AccountID(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(SuccessResponse("ok", id.String()))
	})
	app.Get("/boom", func(ctx *fiber.Ctx) error {
		return errors.New("db exploded")
	})
	app.Get("/teapot", func(ctx *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	app.Get("/invalid", func(ctx *fiber.Ctx) error {
		return ValidateRequest(payBody{})
	})
	return app
}

func decode(t *testing.T, app *fiber.App, path, token string) (int, BaseResponse[any]) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body BaseResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestJwtMiddleware(t *testing.T) {
	app := newApp("secret")
	account := uuid.New()

	token, err := SignToken("secret", account, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	status, body := decode(t, app, "/me", token)
	assert.Equal(t, 200, status)
	assert.True(t, body.Success)
	assert.Equal(t, account.String(), body.Data)

	status, _ = decode(t, app, "/me", "")
	assert.Equal(t, 401, status)

	forged, err := SignToken("other", account, nil)
	require.NoError(t, err)
	status, _ = decode(t, app, "/me", forged)
	assert.Equal(t, 401, status)

	expired, err := SignToken("secret", account, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, err)
	status, _ = decode(t, app, "/me", expired)
	assert.Equal(t, 401, status)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "nope"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	status, _ = decode(t, app, "/me", noUser)
	assert.Equal(t, 401, status)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := newApp("secret")

	status, body := decode(t, app, "/boom", "")
	assert.Equal(t, 500, status)
	assert.False(t, body.Success)
	assert.Equal(t, "Internal server error", body.Message)

	status, body = decode(t, app, "/teapot", "")
	assert.Equal(t, fiber.StatusTeapot, status)
	assert.Equal(t, "short and stout", body.Message)

	status, body = decode(t, app, "/invalid", "")
	assert.Equal(t, 400, status)
	assert.NotNil(t, body.Data)
}
