package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestErrorResp(t *testing.T) {
	app := fiber.New()
	app.Get("/missing", func(c *fiber.Ctx) error {
		return ErrorNotFoundResp(c, "room not found")
	})
	app.Get("/ok", func(c *fiber.Ctx) error {
		return SuccessResp(c, Map{"rooms": 2}, NowMeta())
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var body ApiResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Success || body.Error == nil {
		t.Fatalf("expected error envelope, got %s", data)
	}
	if body.Error.Code != "not_found" || body.Error.Status != 404 || body.Error.Message != "room not found" {
		t.Errorf("unexpected error: %+v", body.Error)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/ok", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, _ = io.ReadAll(resp.Body)
	body = ApiResponse{}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !body.Success || body.Meta == nil || body.Meta.Timestamp == nil {
		t.Errorf("expected success envelope with timestamp, got %s", data)
	}
}
