package middleware

import (
	"time"

	"MinoriAI/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const RequestIDKey = "X-Request-ID"

const maxRequestIDLength = 64

// NewRequestIDMiddleware echoes a caller supplied X-Request-ID or mints a
// ULID, and stores it in Locals for handlers and the access log.
func NewRequestIDMiddleware() fiber.Handler {
	utilsInstance := utils.New()

	return func(c *fiber.Ctx) error {
		requestID := c.Get(RequestIDKey)
		if len(requestID) > maxRequestIDLength {
			requestID = ""
		}

		if requestID == "" {
			id, err := utilsInstance.NewULIDFromTimestamp(time.Now())
			if err != nil {
				id = uuid.NewString()
			}
			requestID = id
		}

		c.Locals(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)

		return c.Next()
	}
}
