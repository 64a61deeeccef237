package detectionService

import (
	"errors"
	"image"
	"time"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/api/detection"
	"MinoriAI/internal/entity"
	contextPkg "MinoriAI/pkg/context"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *detectionService) ProcessFrame(ctx context.Context, clientID string, crop entity.Crop, img image.Image) (FrameResult, error) {
	sess := s.sessions.Get(clientID)
	start := s.now()

	out, err := sess.Analyze(ctx, img, crop)
	res := FrameResult{
		ClientID:   sess.ID(),
		Outcome:    out,
		Processing: s.now().Sub(start),
	}
	if err != nil && !errors.Is(err, advisory.ErrAdvisoryFetch) {
		return res, err
	}

	s.record(ctx, sess.ID(), out.Detection, out.Advice, res.Processing)
	return res, err
}

func (s *detectionService) Advise(ctx context.Context, crop entity.Crop, disease string) (detection.AdvisoryResponse, error) {
	start := s.now()

	answer, err := s.advisor.Fetch(ctx, crop, disease)
	if err != nil {
		return detection.AdvisoryResponse{}, errors.Join(advisory.ErrAdvisoryFetch, err)
	}

	return detection.AdvisoryResponse{
		Crop:           crop.Title(),
		Disease:        disease,
		Question:       advisory.Question(crop, disease),
		Solution:       answer.Text,
		Known:          answer.Known,
		Sources:        answer.Sources,
		ProcessingTime: s.now().Sub(start).Seconds(),
	}, nil
}

func (s *detectionService) Crops() []detection.CropInfo {
	infos := make([]detection.CropInfo, 0, len(s.models.Crops()))
	for _, crop := range s.models.Crops() {
		model, err := s.models.Get(crop)
		if err != nil {
			continue
		}
		infos = append(infos, detection.CropInfo{
			Name:   crop.String(),
			Title:  crop.Title(),
			Labels: model.Labels(),
		})
	}
	return infos
}

func (s *detectionService) ListDetections(ctx context.Context, clientID string, limit int) ([]entity.DetectionRecord, error) {
	if s.repo == nil {
		return nil, detection.ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = detection.DefaultHistoryLimit
	}
	if limit > detection.MaxHistoryLimit {
		limit = detection.MaxHistoryLimit
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return nil, err
	}
	return client.Detections.ListDetections(ctx, clientID, limit)
}

// record persists a displayed detection when history is enabled. Failures
// are logged and never reach the user.
func (s *detectionService) record(ctx context.Context, clientID string, d entity.DetectionResult, advice *entity.AdvisoryEntry, processing time.Duration) {
	if s.repo == nil || d.Label == "" {
		return
	}

	at := d.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	id, err := s.utils.NewULIDFromTimestamp(at)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Failed to generate detection id")
		return
	}

	rec := entity.DetectionRecord{
		ID:               id,
		ClientID:         clientID,
		Crop:             d.Crop.String(),
		Label:            d.Label,
		IsHealthy:        d.IsHealthy,
		AdvisoryKnown:    advice != nil && advice.Known,
		ProcessingMillis: processing.Milliseconds(),
		CreatedAt:        at,
	}

	client, err := s.repo.NewClient(false)
	if err == nil {
		err = client.Detections.SaveDetection(ctx, rec)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"client_id":  clientID,
			"error":      err.Error(),
		}).Warn("Failed to record detection")
	}
}
