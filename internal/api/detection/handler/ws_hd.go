package detectionHandler

import (
	"errors"
	"time"

	"MinoriAI/internal/api/detection"
	detectionService "MinoriAI/internal/api/detection/service"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/middleware"
	"MinoriAI/internal/session"
	"MinoriAI/pkg/log"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/context"
)

// handleRealtimeWebSocket runs a detection loop for one browser tab. The
// read loop below only feeds frames and commands; results are written by the
// loop through the socket sink.
func (h *DetectionHandler) handleRealtimeWebSocket(c *websocket.Conn) {
	clientID := c.Params("client_id")
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)

	crop, err := entity.ParseCrop(c.Query("crop", string(entity.CropRice)))
	if err != nil {
		crop = entity.CropRice
	}

	logger := h.log.WithFields(log.Fields{
		"request_id": requestID,
		"client_id":  clientID,
	})
	logger.Info("Real-time detection client connected")
	defer logger.Info("Real-time detection client disconnected")

	sink := newSocketSink(c, clientID, wsWriteTimeout)
	stream := h.detectionService.OpenStream(clientID, crop, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- stream.Run(ctx)
	}()
	defer func() {
		stream.Close()
		cancel()
		if err := <-done; err != nil {
			logger.WithField("error", err.Error()).Warn("Detection loop ended with error")
		}
	}()

	c.SetReadLimit(wsMaxMessageBytes)
	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			return
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("Real-time WebSocket error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			img, err := h.utils.DecodeImageBytes(message)
			if err == nil {
				err = stream.PushImage(img)
			}
			h.frameRejected(sink, stream, err)

		case websocket.TextMessage:
			var msg detection.InboundMessage
			if err := jsoniter.Unmarshal(message, &msg); err != nil {
				sink.status(detection.StatusPayload{Level: session.LevelWarn, Message: "Malformed message"})
				continue
			}
			crop = h.handleMessage(sink, stream, crop, msg)
		}
	}
}

// handleMessage applies one inbound command and returns the crop now in
// effect.
func (h *DetectionHandler) handleMessage(sink *socketSink, stream *detectionService.Stream, current entity.Crop, msg detection.InboundMessage) entity.Crop {
	if msg.Crop != "" {
		crop, err := entity.ParseCrop(msg.Crop)
		if err != nil {
			sink.status(detection.StatusPayload{Level: session.LevelWarn, Message: "Unknown crop " + msg.Crop})
		} else if crop != current {
			stream.SetCrop(crop)
			current = crop
		}
	}

	switch msg.Type {
	case detection.MessageFrame:
		h.frameRejected(sink, stream, stream.PushFrame(msg.Frame))
	case detection.MessageAnalyzeNow:
		stream.TriggerNow()
		if msg.Frame != "" {
			h.frameRejected(sink, stream, stream.PushFrame(msg.Frame))
		}
	case detection.MessageCrop:
	default:
		sink.status(detection.StatusPayload{Level: session.LevelWarn, Message: "Unsupported message type " + msg.Type})
	}
	return current
}

func (h *DetectionHandler) frameRejected(sink *socketSink, stream *detectionService.Stream, err error) {
	switch {
	case err == nil:
	case errors.Is(err, detectionService.ErrFrameDropped):
		h.log.WithField("session", stream.ID()).Debug("Frame dropped, loop busy")
	default:
		sink.status(detection.StatusPayload{Level: session.LevelWarn, Message: "Invalid frame: " + err.Error()})
	}
}
