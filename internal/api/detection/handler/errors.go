package detectionHandler

import (
	"context"
	"errors"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/api/detection"
	"MinoriAI/internal/classifier"
	"MinoriAI/internal/entity"
	"MinoriAI/pkg/response"
	"MinoriAI/pkg/utils"
)

// domainErrors maps pipeline sentinels onto their HTTP responses. The first
// match wins, so a deadline hit inside classification is a timeout rather
// than a classification failure.
var domainErrors = []struct {
	target error
	resp   error
}{
	{context.DeadlineExceeded, detection.ErrTimeout},
	{utils.ErrNoImage, detection.ErrInvalidFrame},
	{utils.ErrInvalidImage, detection.ErrInvalidFrame},
	{utils.ErrImageTooBig, detection.ErrInvalidFrame},
	{entity.ErrUnknownCrop, detection.ErrUnknownCrop},
	{classifier.ErrModelUnavailable, detection.ErrModelUnavailable},
	{classifier.ErrClassification, detection.ErrClassificationFailed},
	{advisory.ErrAdvisoryFetch, detection.ErrAdvisoryFailed},
}

// domainError attaches the matching response error to err. Errors that
// already carry one, and unknown errors, are returned unchanged.
func domainError(err error) error {
	var respErr *response.Error
	if err == nil || errors.As(err, &respErr) {
		return err
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return errors.Join(m.resp, err)
		}
	}
	return err
}
