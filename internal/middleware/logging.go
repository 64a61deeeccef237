package middleware

import (
	"errors"
	"fmt"
	"time"

	"MinoriAI/pkg/log"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// imageFields hold base64 images; only their size is logged.
var imageFields = []string{"frame", "image"}

var sensitiveFields = []string{"password", "token", "secret", "key", "api_key", "authorization"}

type loggingMiddleware struct {
	logger *logrus.Logger
}

func newLoggingMiddleware(logger *logrus.Logger) *loggingMiddleware {
	return &loggingMiddleware{
		logger: logger,
	}
}

func (m *middleware) NewLoggingMiddleware() fiber.Handler {
	return m.loggingMiddleware.handle
}

func (l *loggingMiddleware) handle(c *fiber.Ctx) error {
	start := time.Now()

	err := c.Next()

	requestID, ok := c.Locals(RequestIDKey).(string)
	if !ok || requestID == "" {
		requestID = "unknown"
	}

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	logFields := log.Fields{
		log.RequestIDKey: requestID,
		"method":         c.Method(),
		"path":           c.Path(),
		"status":         status,
		"latency_ms":     time.Since(start).Milliseconds(),
		"ip":             c.IP(),
		"user_agent":     c.Get(fiber.HeaderUserAgent),
		"response_size":  len(c.Response().Body()),
	}

	if body := c.Request().Body(); len(body) > 0 {
		logFields["request_body"] = sanitizeRequestBody(c.Get(fiber.HeaderContentType), body)
	}

	entry := l.logger.WithFields(logFields)
	switch {
	case status >= 500:
		entry.Error("Server error")
	case status >= 400:
		entry.Warn("Client error")
	default:
		entry.Info("Success")
	}

	return err
}

func sanitizeRequestBody(contentType string, body []byte) string {
	var jsonBody map[string]interface{}
	if err := jsoniter.Unmarshal(body, &jsonBody); err != nil {
		return fmt.Sprintf("[%s body, %d bytes]", contentType, len(body))
	}

	for _, field := range imageFields {
		if v, ok := jsonBody[field].(string); ok {
			jsonBody[field] = fmt.Sprintf("[image %d bytes]", len(v))
		}
	}
	for _, field := range sensitiveFields {
		if _, exists := jsonBody[field]; exists {
			jsonBody[field] = "[SECRET]"
		}
	}

	sanitized, err := jsoniter.Marshal(jsonBody)
	if err != nil {
		return "[sanitization-failed]"
	}

	return string(sanitized)
}
