package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MinoriAI/internal/entity"
	"MinoriAI/pkg/redis"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const DefaultSharedTTL = 24 * time.Hour

const sharedKeyPrefix = "minori:advisory:"

type sharedValue struct {
	Text    string   `json:"text"`
	Known   bool     `json:"known"`
	Sources []string `json:"sources,omitempty"`
}

// Shared consults a redis store before the inner Lookup so answers survive
// restarts and are reused across sessions. Redis errors fall through to the
// inner lookup.
type Shared struct {
	inner        Lookup
	store        redis.IRedis
	ttl          time.Duration
	storeUnknown bool
	log          *logrus.Logger
}

func NewShared(inner Lookup, store redis.IRedis, ttl time.Duration, storeUnknown bool, log *logrus.Logger) *Shared {
	if ttl <= 0 {
		ttl = DefaultSharedTTL
	}
	return &Shared{inner: inner, store: store, ttl: ttl, storeUnknown: storeUnknown, log: log}
}

func SharedKey(crop entity.Crop, disease string) string {
	return fmt.Sprintf("%s%s:%s", sharedKeyPrefix, crop, HumanizeLabel(disease))
}

func (s *Shared) Fetch(ctx context.Context, crop entity.Crop, disease string) (Answer, error) {
	key := SharedKey(crop, disease)
	start := time.Now()

	raw, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var v sharedValue
		if err := jsoniter.Unmarshal(raw, &v); err == nil && v.Text != "" {
			return Answer{Text: v.Text, Known: v.Known, Sources: v.Sources, Latency: time.Since(start)}, nil
		}
		s.log.WithField("key", key).Warn("Discarding malformed shared advisory")
	case !errors.Is(err, redis.ErrNotFound):
		s.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Shared advisory store unavailable")
	}

	answer, err := s.inner.Fetch(ctx, crop, disease)
	if err != nil {
		return Answer{}, err
	}
	if !answer.Known && !s.storeUnknown {
		return answer, nil
	}

	data, err := jsoniter.Marshal(sharedValue{Text: answer.Text, Known: answer.Known, Sources: answer.Sources})
	if err == nil {
		err = s.store.Set(ctx, key, data, s.ttl)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to share advisory")
	}
	return answer, nil
}
