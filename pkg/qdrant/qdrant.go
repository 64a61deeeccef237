package qdrant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"MinoriAI/internal/knowledge"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

const DefaultCollection = "crop_advisories"

type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
}

// ConfigFromEnv reads QDRANT_HOST, QDRANT_PORT, QDRANT_API_KEY and
// QDRANT_COLLECTION.
func ConfigFromEnv() Config {
	port, err := strconv.Atoi(os.Getenv("QDRANT_PORT"))
	if err != nil || port == 0 {
		port = 6334
	}
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		host = "localhost"
	}
	collection := os.Getenv("QDRANT_COLLECTION")
	if collection == "" {
		collection = DefaultCollection
	}
	return Config{
		Host:       host,
		Port:       port,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		Collection: collection,
	}
}

// collectionClient is the part of the Qdrant client the store uses.
type collectionClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Store keeps advisory chunks in a Qdrant collection with cosine distance.
type Store struct {
	client     collectionClient
	collection string
	log        *logrus.Logger
}

func New(cfg Config, log *logrus.Logger) (*Store, error) {
	log.WithFields(logrus.Fields{
		"host":       cfg.Host,
		"port":       cfg.Port,
		"collection": cfg.Collection,
	}).Info("Connecting to Qdrant")

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	return NewWithClient(client, cfg.Collection, log), nil
}

func NewWithClient(client collectionClient, collection string, log *logrus.Logger) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection, log: log}
}

func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return err
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && size != uint64(dim) {
			return fmt.Errorf("%w: collection %s has %d, got %d", knowledge.ErrDimension, s.collection, size, dim)
		}
		return nil
	}

	s.log.WithFields(logrus.Fields{
		"collection": s.collection,
		"dim":        dim,
	}).Info("Creating Qdrant collection")

	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	return s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
}

func (s *Store) Upsert(ctx context.Context, chunks []knowledge.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(c.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"source": c.Source,
				"page":   c.Page,
				"index":  c.Index,
				"text":   c.Text,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return err
}

// Search returns no chunks when the collection has not been created yet,
// which is the case after indexing an empty corpus.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]knowledge.ScoredChunk, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.log.WithField("collection", s.collection).Debug("Vector collection missing, nothing to search")
		return []knowledge.ScoredChunk{}, nil
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]knowledge.ScoredChunk, 0, len(results))
	for _, r := range results {
		payload := r.GetPayload()
		chunks = append(chunks, knowledge.ScoredChunk{
			Chunk: knowledge.Chunk{
				ID:     r.GetId().GetUuid(),
				Source: payload["source"].GetStringValue(),
				Page:   int(payload["page"].GetIntegerValue()),
				Index:  int(payload["index"].GetIntegerValue()),
				Text:   payload["text"].GetStringValue(),
			},
			Score: r.GetScore(),
		})
	}
	return chunks, nil
}

func (s *Store) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return s.client.DeleteCollection(ctx, s.collection)
}

// Ping reports whether the server answers.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("qdrant client not configured")
	}
	_, err := s.client.ListCollections(ctx)
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}
