package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"MinoriAI/internal/entity"
	"MinoriAI/pkg/utils"
)

// maxConsecutiveFailures consecutive failed polls mark the camera as lost.
const maxConsecutiveFailures = 10

// Snapshot polls an HTTP endpoint that serves the current still image, such
// as a phone IP-webcam app.
type Snapshot struct {
	URL      string
	Interval time.Duration
	Client   *http.Client

	failures int
	seq      sequencer
}

func NewSnapshot(url string, interval time.Duration) *Snapshot {
	return &Snapshot{URL: url, Interval: interval}
}

func (s *Snapshot) Open(ctx context.Context) error {
	if s.Client == nil {
		s.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if _, err := s.fetch(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCameraLost, err)
	}
	return nil
}

func (s *Snapshot) Read(ctx context.Context) (*entity.Frame, error) {
	if s.seq.seq > 0 {
		if err := wait(ctx, s.Interval); err != nil {
			return nil, err
		}
	}

	f, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.failures++
		if s.failures >= maxConsecutiveFailures {
			return nil, fmt.Errorf("%w: %d consecutive failures: %w", ErrCameraLost, s.failures, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrFrameCapture, err)
	}
	s.failures = 0
	return f, nil
}

func (s *Snapshot) fetch(ctx context.Context) (*entity.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, utils.DefaultMaxFileSize*4))
	if err != nil {
		return nil, err
	}
	img, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return s.seq.frame(img), nil
}

func (s *Snapshot) Close() error {
	if s.Client != nil {
		s.Client.CloseIdleConnections()
	}
	return nil
}
