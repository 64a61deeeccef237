package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/knowledge"
	"MinoriAI/internal/sampler"
	"MinoriAI/internal/session"
)

const (
	ClassifierRemote = "remote"
	ClassifierGemini = "gemini"

	VectorQdrant = "qdrant"
	VectorMemory = "memory"
)

// Env is the process configuration, read once from the environment.
type Env struct {
	AppEnv  string
	AppPort string

	ThrottlePolicy   string
	ThrottleEvery    int64
	ThrottleCooldown time.Duration

	ClassifierBackend string
	ModelInputSize    int
	ClassifierURLs    map[entity.Crop]string
	ClassifierLabels  map[entity.Crop]string

	VectorBackend  string
	VectorSnapshot string
	KnowledgeDir   string
	RetrievalTopK  int
	IndexOnStart   bool

	AdvisoryKeyMode      advisory.KeyMode
	AdvisoryCacheUnknown bool
	AdvisoryTTL          time.Duration
	AdvisoryRetries      int
	RedisAddress         string

	SessionIdleTTL time.Duration
	RateLimit      float64
	RateBurst      int
}

// LoadEnv reads the configuration from the environment, applying defaults
// for anything unset. Malformed values are errors.
func LoadEnv() (Env, error) {
	var errs []error
	p := envParser{errs: &errs}

	e := Env{
		AppEnv:  p.str("APP_ENV", "development"),
		AppPort: p.str("APP_PORT", "3000"),

		ThrottlePolicy:   p.str("THROTTLE_POLICY", "cooldown"),
		ThrottleEvery:    int64(p.integer("THROTTLE_EVERY", sampler.DefaultEvery)),
		ThrottleCooldown: p.duration("THROTTLE_COOLDOWN", sampler.DefaultCooldown),

		ClassifierBackend: strings.ToLower(p.str("CLASSIFIER_BACKEND", ClassifierRemote)),
		ModelInputSize:    p.integer("MODEL_INPUT_SIZE", 128),
		ClassifierURLs:    make(map[entity.Crop]string),
		ClassifierLabels:  make(map[entity.Crop]string),

		VectorBackend:  strings.ToLower(p.str("VECTOR_BACKEND", VectorQdrant)),
		VectorSnapshot: p.str("VECTOR_SNAPSHOT", "./storage/vectors.json"),
		KnowledgeDir:   p.str("KNOWLEDGE_DIR", "./Data"),
		RetrievalTopK:  p.integer("RETRIEVAL_TOP_K", knowledge.DefaultTopK),
		IndexOnStart:   p.boolean("INDEX_ON_START", true),

		AdvisoryCacheUnknown: p.boolean("ADVISORY_CACHE_UNKNOWN", true),
		AdvisoryTTL:          p.duration("ADVISORY_TTL", advisory.DefaultSharedTTL),
		AdvisoryRetries:      p.integer("ADVISORY_RETRIES", 3),
		RedisAddress:         p.str("REDIS_ADDRESS", ""),

		SessionIdleTTL: p.duration("SESSION_IDLE_TTL", session.DefaultIdleTTL),
		RateLimit:      p.float("RATE_LIMIT", 5),
		RateBurst:      p.integer("RATE_BURST", 10),
	}

	switch strings.ToLower(p.str("ADVISORY_CACHE_KEY", "crop_label")) {
	case "crop_label":
		e.AdvisoryKeyMode = advisory.KeyByCropAndLabel
	case "label":
		e.AdvisoryKeyMode = advisory.KeyByLabel
	default:
		errs = append(errs, fmt.Errorf("ADVISORY_CACHE_KEY must be crop_label or label"))
	}

	for _, crop := range entity.Crops() {
		prefix := "CLASSIFIER_" + strings.ToUpper(crop.String())
		e.ClassifierURLs[crop] = os.Getenv(prefix + "_URL")
		e.ClassifierLabels[crop] = os.Getenv(prefix + "_LABELS")
	}

	if e.ClassifierBackend != ClassifierRemote && e.ClassifierBackend != ClassifierGemini {
		errs = append(errs, fmt.Errorf("CLASSIFIER_BACKEND must be %s or %s", ClassifierRemote, ClassifierGemini))
	}
	if e.VectorBackend != VectorQdrant && e.VectorBackend != VectorMemory {
		errs = append(errs, fmt.Errorf("VECTOR_BACKEND must be %s or %s", VectorQdrant, VectorMemory))
	}
	if _, err := e.Sampler(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return Env{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return e, nil
}

func (e Env) Sampler() (sampler.Sampler, error) {
	return sampler.Parse(e.ThrottlePolicy, e.ThrottleEvery, e.ThrottleCooldown)
}

// SessionConfig is the per-session configuration derived from the
// environment.
func (e Env) SessionConfig() (session.Config, error) {
	s, err := e.Sampler()
	if err != nil {
		return session.Config{}, err
	}

	unknown := advisory.CacheUnknown
	if !e.AdvisoryCacheUnknown {
		unknown = advisory.RetryUnknown
	}

	return session.Config{
		Crop:          entity.CropRice,
		Sampler:       s,
		KeyMode:       e.AdvisoryKeyMode,
		UnknownPolicy: unknown,
	}, nil
}

func (e Env) IsProduction() bool {
	return e.AppEnv == "production"
}

type envParser struct {
	errs *[]error
}

func (p envParser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p envParser) integer(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p envParser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p envParser) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// duration accepts Go durations ("3s") or plain seconds ("3", "0.5").
func (p envParser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return time.Duration(secs * float64(time.Second))
}
