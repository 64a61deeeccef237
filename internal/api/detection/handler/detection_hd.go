package detectionHandler

import (
	"errors"
	"image"
	"strings"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/api/detection"
	"MinoriAI/internal/entity"
	contextPkg "MinoriAI/pkg/context"
	"MinoriAI/pkg/handlerUtil"
	"MinoriAI/pkg/log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

// ProcessFrame classifies one frame and answers with the detection and its
// advice. It accepts a JSON body with a data URL frame, or a multipart form
// with an "image" file.
func (h *DetectionHandler) ProcessFrame(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req detection.ProcessFrameRequest
	var img image.Image

	file, err := ctx.FormFile("image")
	if err == nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"file_name":  file.Filename,
			"file_size":  file.Size,
		}).Debug("Processing frame upload")

		req.Crop = strings.ToLower(strings.TrimSpace(ctx.FormValue("crop")))
		req.ClientID = ctx.FormValue("client_id")

		if err := h.validator.Var(req.Crop, "required,oneof=rice wheat"); err != nil {
			return errHandler.Handle(ctx, requestID, domainError(errors.Join(entity.ErrUnknownCrop, err)), ctx.Path(), "validate_crop")
		}

		img, err = h.utils.DecodeImageFile(file)
		if err != nil {
			return errHandler.Handle(ctx, requestID, domainError(err), ctx.Path(), "decode_image_file")
		}
	} else {
		if err := ctx.BodyParser(&req); err != nil {
			return errHandler.Handle(ctx, requestID, detection.ErrBadRequest, ctx.Path(), "parse_request_body")
		}
		req.Crop = strings.ToLower(strings.TrimSpace(req.Crop))

		if err := h.validator.Struct(req); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}

		img, err = h.utils.DecodeDataURL(req.Frame)
		if err != nil {
			return errHandler.Handle(ctx, requestID, domainError(err), ctx.Path(), "decode_frame")
		}
	}

	crop, err := entity.ParseCrop(req.Crop)
	if err != nil {
		return errHandler.Handle(ctx, requestID, domainError(err), ctx.Path(), "parse_crop")
	}

	result, err := h.detectionService.ProcessFrame(c, req.ClientID, crop, img)
	if err != nil {
		if errors.Is(err, advisory.ErrAdvisoryFetch) && result.Outcome.Detection.Label != "" {
			h.log.WithFields(log.Fields{
				"request_id": requestID,
				"client_id":  result.ClientID,
				"label":      result.Outcome.Detection.Label,
				"error":      err.Error(),
			}).Warn("Detection without advice")

			resp := detection.ResponseFromOutcome(result.ClientID, result.Outcome, result.Processing)
			resp.Success = false
			resp.Error = detection.ErrAdvisoryFailed.Error()
			return errHandler.HandleSuccess(ctx, fiber.StatusBadGateway, resp)
		}
		return errHandler.Handle(ctx, requestID, domainError(err), ctx.Path(), "process_frame")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":    requestID,
			"client_id":     result.ClientID,
			"crop":          crop,
			"label":         result.Outcome.Detection.Label,
			"cached":        result.Outcome.Cached,
			"processing_ms": result.Processing.Milliseconds(),
		}).Info("Frame processed")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, detection.ResponseFromOutcome(result.ClientID, result.Outcome, result.Processing))
	}
}

// Advise asks the advisory pipeline directly, without a classification.
func (h *DetectionHandler) Advise(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req detection.AdvisoryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrBadRequest, ctx.Path(), "parse_request_body")
	}
	req.Crop = strings.ToLower(strings.TrimSpace(req.Crop))
	req.Disease = strings.TrimSpace(req.Disease)

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	crop, err := entity.ParseCrop(req.Crop)
	if err != nil {
		return errHandler.Handle(ctx, requestID, domainError(err), ctx.Path(), "parse_crop")
	}

	resp, err := h.detectionService.Advise(c, crop, req.Disease)
	if err != nil {
		return errHandler.Handle(ctx, requestID, domainError(err), ctx.Path(), "advise")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, resp)
}

func (h *DetectionHandler) ListCrops(ctx *fiber.Ctx) error {
	return handlerUtil.New(h.log).HandleSuccess(ctx, fiber.StatusOK, detection.CropsResponse{
		Crops: h.detectionService.Crops(),
	})
}

func (h *DetectionHandler) ListDetections(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	var q detection.DetectionsQuery
	if err := ctx.QueryParser(&q); err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrBadRequest, ctx.Path(), "parse_query")
	}
	if err := h.validator.Struct(q); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	records, err := h.detectionService.ListDetections(contextPkg.FromFiberCtx(ctx), q.ClientID, q.Limit)
	if err != nil {
		return errHandler.Handle(ctx, requestID, domainError(err), ctx.Path(), "list_detections")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, detection.DetectionsResponse{
		Detections: records,
		Count:      len(records),
	})
}
