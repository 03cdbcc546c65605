package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SuccessResp sends a successful API response
func SuccessResp(c *fiber.Ctx, data interface{}, meta ...ApiResponseMeta) error {
	resp := ApiResponse{
		Success: true,
		Data:    data,
	}
	if len(meta) > 0 {
		resp.Meta = &meta[0]
	}
	return c.Status(fiber.StatusOK).JSON(&resp)
}

// ErrorResp sends an error API response
func ErrorResp(c *fiber.Ctx, err ApiError, meta ...ApiResponseMeta) error {
	if err.Status == 0 {
		err.Status = fiber.StatusBadRequest
	}
	if err.Code == "" {
		err.Code = statusCode(err.Status)
	}
	resp := ApiResponse{
		Success: false,
		Error:   &err,
	}
	if len(meta) > 0 {
		resp.Meta = &meta[0]
	}
	return c.Status(err.Status).JSON(&resp)
}

// ErrorCodeResp sends an error response with a specific status code
func ErrorCodeResp(c *fiber.Ctx, status int, message ...string) error {
	msg := "API Error"
	if len(message) > 0 {
		msg = message[0]
	}
	return ErrorResp(c, ApiError{
		Status:  status,
		Message: msg,
	})
}

// ErrorNotFoundResp sends a 404 Not Found error response
func ErrorNotFoundResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusNotFound, message...)
}

// ErrorBadRequestResp sends a 400 Bad Request error response
func ErrorBadRequestResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusBadRequest, message...)
}

// ErrorServiceUnavailableResp sends a 503 Service Unavailable response
func ErrorServiceUnavailableResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusServiceUnavailable, message...)
}

// ErrorInternalServerErrorResp sends a 500 Internal Server Error response
func ErrorInternalServerErrorResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusInternalServerError, message...)
}

// NowMeta returns response metadata stamped with the current time
func NowMeta() ApiResponseMeta {
	now := time.Now().UTC()
	return ApiResponseMeta{Timestamp: &now}
}

// statusCode turns 404 into "not_found"
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
