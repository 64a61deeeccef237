package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/classifier"
	"MinoriAI/internal/entity"
	"MinoriAI/internal/knowledge"
	"MinoriAI/pkg/gemini"
	"MinoriAI/pkg/openai"
	"MinoriAI/pkg/qdrant"
	"MinoriAI/pkg/redis"

	"github.com/sirupsen/logrus"
)

// ParseLabels reads a crop vocabulary from either a class-indices JSON file
// or a comma separated list in index order.
func ParseLabels(raw string) (classifier.Vocabulary, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("no labels configured")
	}
	if st, err := os.Stat(raw); err == nil && !st.IsDir() {
		return classifier.LoadVocabulary(raw)
	}

	var labels classifier.Vocabulary
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		return nil, errors.New("no labels configured")
	}
	return labels, nil
}

// NewClassifierFactory builds classifiers for the configured backend. The
// gemini backend needs gem; the remote one dials CLASSIFIER_<CROP>_URL.
func NewClassifierFactory(env Env, gem gemini.IGemini, log *logrus.Logger) classifier.Factory {
	return func(ctx context.Context, crop entity.Crop) (classifier.Classifier, error) {
		labels, err := ParseLabels(env.ClassifierLabels[crop])
		if err != nil {
			return nil, fmt.Errorf("%w: CLASSIFIER_%s_LABELS: %w", classifier.ErrModelUnavailable, strings.ToUpper(crop.String()), err)
		}

		switch env.ClassifierBackend {
		case ClassifierGemini:
			return classifier.NewGemini(crop, labels, gem)
		default:
			return classifier.NewRemote(ctx, classifier.RemoteConfig{
				Crop:      crop,
				URL:       env.ClassifierURLs[crop],
				Labels:    labels,
				InputSize: env.ModelInputSize,
			}, log)
		}
	}
}

// VectorStore is a knowledge.VectorStore plus the hooks the process needs
// around it.
type VectorStore struct {
	knowledge.VectorStore
	persist func() error
	close   func() error
}

// Persist saves the in-memory index to its snapshot. It is a no-op for
// qdrant.
func (v *VectorStore) Persist() error {
	if v.persist == nil {
		return nil
	}
	return v.persist()
}

func (v *VectorStore) Close() error {
	if v.close == nil {
		return nil
	}
	return v.close()
}

// NewVectorStore opens the configured vector backend. The memory backend
// is restored from VECTOR_SNAPSHOT when that file exists.
func NewVectorStore(ctx context.Context, env Env, log *logrus.Logger) (*VectorStore, error) {
	switch env.VectorBackend {
	case VectorMemory:
		mem := knowledge.NewMemoryStore()
		if env.VectorSnapshot != "" {
			if err := mem.Load(env.VectorSnapshot); err != nil {
				return nil, err
			}
		}
		return &VectorStore{
			VectorStore: mem,
			persist: func() error {
				if env.VectorSnapshot == "" {
					return nil
				}
				return mem.Save(env.VectorSnapshot)
			},
		}, nil

	default:
		store, err := qdrant.New(qdrant.ConfigFromEnv(), log)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("qdrant unreachable: %w", err)
		}
		return &VectorStore{VectorStore: store, close: store.Close}, nil
	}
}

// NewGenerator prefers the OpenAI compatible chat endpoint and falls back
// to Gemini when no LLM key is set.
func NewGenerator(gem gemini.IGemini, log *logrus.Logger) (advisory.Generator, error) {
	cfg := openai.ConfigFromEnv()
	if cfg.APIKey != "" {
		chat, err := openai.NewChat(cfg)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"model":    chat.Model(),
			"base_url": cfg.BaseURL,
		}).Info("Advisory generator: chat completions")
		return chat, nil
	}

	if gem == nil {
		return nil, errors.New("no advisory generator: set LLM_API_KEY or GEMINI_API_KEY")
	}
	log.Info("Advisory generator: gemini")
	return advisory.GeneratorFunc(gem.GenerateText), nil
}

// NewAdvisor assembles the advisory chain: retrieval-augmented generation,
// bounded retry, then the shared redis cache when one is configured.
func NewAdvisor(env Env, retriever advisory.Retriever, generator advisory.Generator, store redis.IRedis, log *logrus.Logger) advisory.Lookup {
	var lookup advisory.Lookup = advisory.NewRAG(retriever, generator, env.RetrievalTopK, log)
	lookup = advisory.NewRetrying(lookup, log, advisory.WithRetryAttempts(env.AdvisoryRetries))
	if store != nil {
		lookup = advisory.NewShared(lookup, store, env.AdvisoryTTL, env.AdvisoryCacheUnknown, log)
	}
	return lookup
}

// BuildIndex indexes KNOWLEDGE_DIR into store unless it is already populated.
// An empty corpus is not an error: the advisor then answers "I don't know".
func BuildIndex(ctx context.Context, env Env, store *VectorStore, embedder knowledge.Embedder, force bool, log *logrus.Logger) (knowledge.IndexReport, error) {
	report, err := knowledge.NewIndexer(store, embedder, log).Build(ctx, env.KnowledgeDir, force)
	if errors.Is(err, knowledge.ErrEmptyCorpus) {
		log.WithFields(logrus.Fields{
			"dir": env.KnowledgeDir,
		}).Warn("Knowledge corpus is empty, advisories will be unknown")
		return report, nil
	}
	if err != nil {
		return report, err
	}
	if !report.Skipped {
		if err := store.Persist(); err != nil {
			return report, fmt.Errorf("persist vector index: %w", err)
		}
	}
	return report, nil
}
