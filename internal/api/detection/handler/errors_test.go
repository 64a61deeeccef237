package detectionHandler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/api/detection"
	"MinoriAI/internal/classifier"
	"MinoriAI/pkg/handlerUtil"
	"MinoriAI/pkg/utils"
)

func TestDomainError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"oversized frame", fmt.Errorf("%w: 16000x16000", utils.ErrImageTooBig), detection.ErrInvalidFrame},
		{"classifier timeout", fmt.Errorf("%w: %w", classifier.ErrClassification, context.DeadlineExceeded), detection.ErrTimeout},
		{"classifier failure", fmt.Errorf("%w: sidecar closed", classifier.ErrClassification), detection.ErrClassificationFailed},
		{"advisory failure", errors.Join(advisory.ErrAdvisoryFetch, errors.New("502 from llm")), detection.ErrAdvisoryFailed},
		{"already mapped", detection.ErrHistoryDisabled, detection.ErrHistoryDisabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := handlerUtil.Resolve(domainError(tc.err))
			if got == nil || !errors.Is(got, tc.want) {
				t.Fatalf("resolved %v, want %v", got, tc.want)
			}
		})
	}

	if handlerUtil.Resolve(domainError(errors.New("boom"))) != nil {
		t.Fatal("unknown errors must stay unmapped")
	}
}
