package config

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type pingHandler struct{}

func (pingHandler) Start(srv fiber.Router) {
	srv.Post("/process-frame", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
}

func TestMountRoutesServesRootAndVersionedPaths(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	mountRoutes(app, []handler{pingHandler{}})

	for _, path := range []string{"/process-frame", "/api/v1/process-frame"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Errorf("POST %s = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/v2/process-frame", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("unregistered prefix = %d, want 404", resp.StatusCode)
	}
}
