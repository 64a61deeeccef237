package detectionService

import (
	"image"
	"time"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/api/detection"
	detectionRepository "MinoriAI/internal/api/detection/repository"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/session"
	"MinoriAI/pkg/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// Models is the classifier registry as seen by the service.
type Models interface {
	session.Models
	Crops() []entity.Crop
}

type IDetectionService interface {
	ProcessFrame(ctx context.Context, clientID string, crop entity.Crop, img image.Image) (FrameResult, error)
	OpenStream(clientID string, crop entity.Crop, sink session.Sink) *Stream
	Advise(ctx context.Context, crop entity.Crop, disease string) (detection.AdvisoryResponse, error)
	Crops() []detection.CropInfo
	ListDetections(ctx context.Context, clientID string, limit int) ([]entity.DetectionRecord, error)
}

// FrameResult is one analyze-now call. Outcome carries the detection even
// when the advisory lookup failed.
type FrameResult struct {
	ClientID   string
	Outcome    session.Outcome
	Processing time.Duration
}

type detectionService struct {
	log      *logrus.Logger
	sessions *session.Manager
	models   Models
	advisor  advisory.Lookup
	repo     detectionRepository.Repository
	utils    utils.IUtils
	now      func() time.Time
}

// NewDetectionService wires the detection use cases. repo may be nil, in
// which case history is disabled.
func NewDetectionService(
	log *logrus.Logger,
	sessions *session.Manager,
	models Models,
	advisor advisory.Lookup,
	repo detectionRepository.Repository,
	utils utils.IUtils,
) IDetectionService {
	return &detectionService{
		log:      log,
		sessions: sessions,
		models:   models,
		advisor:  advisor,
		repo:     repo,
		utils:    utils,
		now:      time.Now,
	}
}
