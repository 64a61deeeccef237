package config

import (
	"errors"

	"MinoriAI/pkg/handlerUtil"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "Minori AI",
			BodyLimit:         20 * 1024 * 1024,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: true,
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      errorHandler(logger),
		})

	return app
}

// errorHandler answers errors that escape handlers, such as unknown routes
// or a non-upgrade request on the WebSocket path, in the API's error shape.
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(handlerUtil.ErrorResponse{Error: fe.Message})
		}
		requestID, _ := c.Locals("X-Request-ID").(string)
		return handlerUtil.New(logger).Handle(c, requestID, err, c.Path(), "unhandled")
	}
}
