package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func newTestApp(t *testing.T, cfg Config) (*fiber.App, Middleware) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	m := New(log, cfg)
	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	app.Use(m.NewLoggingMiddleware())
	return app, m
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	app, m := newTestApp(t, Config{})
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(m.GetRequestID(c))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	header := resp.Header.Get(RequestIDKey)
	if len(header) != 26 {
		t.Fatalf("generated id %q is not a ULID", header)
	}
	if string(body) != header {
		t.Fatalf("handler saw %q, header %q", body, header)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(RequestIDKey, "abc-123")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := resp.Header.Get(RequestIDKey); got != "abc-123" {
		t.Fatalf("caller id not echoed: %q", got)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(RequestIDKey, strings.Repeat("x", 200))
	resp, _ = app.Test(req)
	if got := resp.Header.Get(RequestIDKey); len(got) != 26 {
		t.Fatalf("oversized id should be replaced, got %q", got)
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	app, m := newTestApp(t, Config{RateLimit: 0.001, RateBurst: 2})
	app.Post("/limited", m.NewRateLimiter, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/limited", nil))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != fiber.StatusTooManyRequests {
		t.Fatalf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestSanitizeRequestBody(t *testing.T) {
	got := sanitizeRequestBody("application/json", []byte(`{"frame":"data:image/jpeg;base64,AAAA","crop":"rice","api_key":"s3cr3t"}`))
	if strings.Contains(got, "AAAA") || strings.Contains(got, "s3cr3t") {
		t.Fatalf("body not sanitized: %s", got)
	}
	if !strings.Contains(got, `"crop":"rice"`) {
		t.Fatalf("plain fields should survive: %s", got)
	}

	got = sanitizeRequestBody("multipart/form-data", []byte("--boundary"))
	if got != "[multipart/form-data body, 10 bytes]" {
		t.Fatalf("non-JSON body = %q", got)
	}
}
