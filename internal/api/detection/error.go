package detection

import (
	"MinoriAI/pkg/response"
	"net/http"
)

var (
	ErrInternalServerError  = response.NewError(http.StatusInternalServerError, "internal server error")
	ErrBadRequest           = response.NewCodedError(http.StatusBadRequest, "BAD_REQUEST", "bad request")
	ErrInvalidFrame         = response.NewCodedError(http.StatusBadRequest, "INVALID_FRAME", "frame is missing or is not a decodable image")
	ErrUnknownCrop          = response.NewCodedError(http.StatusBadRequest, "UNKNOWN_CROP", "crop must be one of rice, wheat")
	ErrClassificationFailed = response.NewCodedError(http.StatusUnprocessableEntity, "CLASSIFICATION_FAILED", "could not classify the leaf image")
	ErrAdvisoryFailed       = response.NewCodedError(http.StatusBadGateway, "ADVISORY_FAILED", "advisory lookup failed")
	ErrTimeout              = response.NewCodedError(http.StatusRequestTimeout, "TIMEOUT", "request timed out")
	ErrHistoryDisabled      = response.NewCodedError(http.StatusNotFound, "HISTORY_DISABLED", "detection history is not configured")
	ErrModelUnavailable     = response.NewCodedError(http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "no model is loaded for this crop")
)
