package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "agent-secret"

func protectedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/whoami", JWTMiddleware(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"driver_id": c.Locals("driver_id"),
			"bus_id":    c.Locals("bus_id"),
		})
	})
	return app
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	token, err := Sign(testSecret, "driver-1", "bus-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	app := protectedApp(testSecret)
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMissingToken(t *testing.T) {
	app := protectedApp(testSecret)
	req := httptest.NewRequest("GET", "/whoami", nil)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := Sign("other-secret", "driver-1", "bus-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	app := protectedApp(testSecret)
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestParseFailureRejected(t *testing.T) {
	orig := parseMiddlewareClaimsFn
	parseMiddlewareClaimsFn = func(string, jwt.Claims, jwt.Keyfunc, ...jwt.ParserOption) (*jwt.Token, error) {
		return nil, errors.New("parser down")
	}
	defer func() { parseMiddlewareClaimsFn = orig }()

	token, err := Sign(testSecret, "driver-1", "bus-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	app := protectedApp(testSecret)
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestBearerFromHeader(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"abc123", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := bearerFromHeader(tc.header); got != tc.want {
			t.Errorf("bearerFromHeader(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
