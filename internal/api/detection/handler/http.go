package detectionHandler

import (
	"time"

	detectionService "MinoriAI/internal/api/detection/service"
	"MinoriAI/internal/middleware"
	"MinoriAI/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout = 90 * time.Second
	wsReadTimeout         = 60 * time.Second
	wsWriteTimeout        = 10 * time.Second
	// A 5MB image as a base64 data URL inside a JSON envelope.
	wsMaxMessageBytes = 8 << 20
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	utils            utils.IUtils
	requestTimeout   time.Duration
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	utils utils.IUtils,
) *DetectionHandler {
	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		utils:            utils,
		requestTimeout:   defaultRequestTimeout,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Post("/process-frame", h.middleware.NewRateLimiter, h.ProcessFrame)
	srv.Post("/advisory", h.middleware.NewRateLimiter, h.Advise)
	srv.Get("/crops", h.ListCrops)
	srv.Get("/detections", h.ListDetections)

	ws := srv.Group("/ws")
	ws.Use(wsMiddleware)
	ws.Get("/real-time-detection/:client_id", websocket.New(h.handleRealtimeWebSocket))
}
