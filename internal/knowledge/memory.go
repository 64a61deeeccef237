package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

type memoryEntry struct {
	Chunk  Chunk     `json:"chunk"`
	Vector []float32 `json:"vector"`
}

type memorySnapshot struct {
	Dim     int           `json:"dim"`
	Entries []memoryEntry `json:"entries"`
}

// MemoryStore is an in-process cosine-similarity index. It can be persisted
// to a JSON snapshot so the corpus does not have to be re-embedded on every
// start.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim != 0 && m.dim != dim {
		return fmt.Errorf("%w: index has %d, got %d", ErrDimension, m.dim, dim)
	}
	m.dim = dim
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.entries)), nil
}

func (m *MemoryStore) Upsert(_ context.Context, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range chunks {
		if m.dim != 0 && len(vectors[i]) != m.dim {
			return fmt.Errorf("%w: index has %d, chunk %s has %d", ErrDimension, m.dim, c.ID, len(vectors[i]))
		}
		m.entries[c.ID] = memoryEntry{Chunk: c, Vector: vectors[i]}
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim != 0 && len(vector) != m.dim {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimension, m.dim, len(vector))
	}

	results := make([]ScoredChunk, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, ScoredChunk{Chunk: e.Chunk, Score: cosine(vector, e.Vector)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]memoryEntry)
	m.dim = 0
	return nil
}

// Save writes the index to path.
func (m *MemoryStore) Save(path string) error {
	m.mu.RLock()
	snap := memorySnapshot{Dim: m.dim, Entries: make([]memoryEntry, 0, len(m.entries))}
	for _, e := range m.entries {
		snap.Entries = append(snap.Entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Chunk.ID < snap.Entries[j].Chunk.ID })

	data, err := jsoniter.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode vector snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write vector snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the index with the snapshot at path. A missing file leaves
// the store empty.
func (m *MemoryStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vector snapshot: %w", err)
	}

	var snap memorySnapshot
	if err := jsoniter.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode vector snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.dim = snap.Dim
	m.entries = make(map[string]memoryEntry, len(snap.Entries))
	for _, e := range snap.Entries {
		m.entries[e.Chunk.ID] = e
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
