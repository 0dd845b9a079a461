// Package apitest builds fiber apps and requests for handler tests.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"housing-backend/internal/auth"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

var Admin = auth.Actor{UserID: 1, Name: "Test Admin", Role: models.RoleAdmin}

func Manager(houseID uint) auth.Actor {
	return auth.Actor{UserID: 2, Name: "Test Manager", Role: models.RoleHouseManager, HouseID: &houseID}
}

// NewApp returns an app with the production error handler and actor set on
// every request.
func NewApp(actor auth.Actor) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: respond.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		auth.SetActor(c, actor)
		return c.Next()
	})
	return app
}

func JSON(method, path, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Do runs req and decodes the envelope. data, when not nil, receives the
// envelope's data field.
func Do(t *testing.T, app *fiber.App, req *http.Request, data any) (int, respond.Envelope) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return resp.StatusCode, respond.Envelope{}
	}

	var env struct {
		respond.Envelope
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return resp.StatusCode, env.Envelope
}
