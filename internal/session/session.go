// Package session runs the sample, classify, look up and present cycle for
// one user. Front ends supply a frame source and a Sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/classifier"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/sampler"

	"github.com/sirupsen/logrus"
)

const (
	DefaultClassifyTimeout = 15 * time.Second
	DefaultAdvisoryTimeout = 60 * time.Second
)

// Models resolves the classifier for a crop.
type Models interface {
	Get(crop entity.Crop) (classifier.Classifier, error)
}

type Config struct {
	Crop            entity.Crop
	Sampler         sampler.Sampler
	KeyMode         advisory.KeyMode
	UnknownPolicy   advisory.UnknownPolicy
	ClassifyTimeout time.Duration
	AdvisoryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Crop == "" {
		c.Crop = entity.CropRice
	}
	if c.Sampler == nil {
		c.Sampler = sampler.Cooldown{Interval: sampler.DefaultCooldown}
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = DefaultClassifyTimeout
	}
	if c.AdvisoryTimeout <= 0 {
		c.AdvisoryTimeout = DefaultAdvisoryTimeout
	}
	return c
}

// Outcome is the result of one analysis cycle. Advice is nil when the
// advisory lookup failed.
type Outcome struct {
	Detection entity.DetectionResult `json:"detection"`
	Advice    *entity.AdvisoryEntry  `json:"advice,omitempty"`
	Cached    bool                   `json:"cached"`
}

// Session holds everything one user's detection loop needs: the selected
// crop, throttle state, the solution cache and the ports it calls.
type Session struct {
	id     string
	cfg    Config
	models Models
	lookup advisory.Lookup
	log    *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	crop     entity.Crop
	throttle sampler.State
	cache    *advisory.SolutionCache
	latest   *Outcome

	// unix nanos, read without mu by the manager's sweeper
	lastSeen atomic.Int64
}

func New(id string, cfg Config, models Models, lookup advisory.Lookup, log *logrus.Logger) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:     id,
		cfg:    cfg,
		models: models,
		lookup: lookup,
		log:    log,
		now:    time.Now,
		crop:   cfg.Crop,
		cache:  advisory.NewSolutionCache(advisory.WithUnknownPolicy(cfg.UnknownPolicy)),
	}
	s.touch()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Crop() entity.Crop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crop
}

func (s *Session) SetCrop(crop entity.Crop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crop = crop
}

func (s *Session) Latest() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Outcome{}, false
	}
	return *s.latest, true
}

func (s *Session) CacheStats() advisory.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Stats()
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(s.now().UnixNano())
}

// Analyze classifies img and attaches advice, going through the session
// cache. Calls are serialised per session. An advisory failure still
// returns the detection alongside an ErrAdvisoryFetch error.
func (s *Session) Analyze(ctx context.Context, img image.Image, crop entity.Crop) (Outcome, error) {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	if crop == "" {
		crop = s.crop
	} else {
		s.crop = crop
	}

	detection, err := s.classify(ctx, crop, img)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Detection: detection}
	if detection.IsHealthy {
		advice := healthyAdvice(detection, s.now())
		out.Advice = &advice
		s.latest = &out
		return out, nil
	}

	key := s.cfg.KeyMode.Key(crop, detection.Label)
	entry, cached, err := s.cache.GetOrFetch(ctx, key, crop, s.fetch)
	if err != nil {
		s.latest = &out
		return out, err
	}

	out.Advice = &entry
	out.Cached = cached
	s.latest = &out
	return out, nil
}

func (s *Session) classify(ctx context.Context, crop entity.Crop, img image.Image) (entity.DetectionResult, error) {
	model, err := s.models.Get(crop)
	if err != nil {
		return entity.DetectionResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ClassifyTimeout)
	defer cancel()

	start := s.now()
	label, err := model.Classify(ctx, img)
	if err != nil {
		if !errors.Is(err, classifier.ErrClassification) {
			err = fmt.Errorf("%w: %w", classifier.ErrClassification, err)
		}
		return entity.DetectionResult{}, err
	}

	end := s.now()
	detection := entity.NewDetectionResult(crop, label, end, end.Sub(start))

	s.log.WithFields(logrus.Fields{
		"session":    s.id,
		"crop":       crop,
		"label":      label,
		"healthy":    detection.IsHealthy,
		"latency_ms": detection.Latency.Milliseconds(),
	}).Debug("Leaf classified")

	return detection, nil
}

func (s *Session) fetch(ctx context.Context, crop entity.Crop, label string) (advisory.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AdvisoryTimeout)
	defer cancel()

	start := s.now()
	answer, err := s.lookup.Fetch(ctx, crop, label)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"session": s.id,
			"crop":    crop,
			"label":   label,
			"error":   err.Error(),
		}).Warn("Advisory lookup failed")
		return advisory.Answer{}, err
	}
	if answer.Latency == 0 {
		answer.Latency = s.now().Sub(start)
	}
	return answer, nil
}

func healthyAdvice(d entity.DetectionResult, now time.Time) entity.AdvisoryEntry {
	return entity.AdvisoryEntry{
		Crop:      d.Crop,
		Label:     d.Label,
		Text:      advisory.HealthyText,
		Known:     true,
		FetchedAt: now,
	}
}
