package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-resilience-api/internal/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func echoUserApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.JWTProtected(testSecret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CurrentUserID(c))
	})
	return app
}

func TestJWTProtectedBindsOpaqueSubject(t *testing.T) {
	app := echoUserApp()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "Xk9fA2c",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	resp := perform(t, app, "Bearer "+token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Xk9fA2c", readBody(t, resp))
}

func TestJWTProtectedAcceptsNumericUserIDClaim(t *testing.T) {
	app := echoUserApp()
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": 42})

	resp := perform(t, app, "bearer "+token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "42", readBody(t, resp))
}

func TestJWTProtectedBindsOnlyTheSubject(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.JWTProtected(testSecret))
	app.Get("/", func(c *fiber.Ctx) error {
		if c.Locals("user_role") != nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(middleware.CurrentUserID(c))
	})
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "client-3", "role": "Admin", "roles": []string{"owner"}})

	resp := perform(t, app, "Bearer "+token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "client-3", readBody(t, resp))
}

func TestJWTProtectedRejectsInvalidTokens(t *testing.T) {
	app := echoUserApp()

	cases := map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"empty token":  "Bearer ",
		"wrong secret": "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "u1"}),
		"expired":      "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			resp := perform(t, app, header)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.RequireUser(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp := perform(t, app, "")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithUserAllowsAuthenticated(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "client-7")
		return c.Next()
	})
	app.Get("/", middleware.WithUser(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}))

	resp := perform(t, app, "")
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRateLimitKeysByUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User"))
		return c.Next()
	})
	app.Post("/", middleware.RateLimit("backups", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, send("a"))
	require.Equal(t, fiber.StatusTooManyRequests, send("a"))
	require.Equal(t, fiber.StatusOK, send("b"))
}

func perform(t *testing.T, app *fiber.App, authorization string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	buf := new(strings.Builder)
	_, err := io.Copy(buf, resp.Body)
	require.NoError(t, err)
	return buf.String()
}
