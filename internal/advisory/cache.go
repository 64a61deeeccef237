package advisory

import (
	"context"
	"fmt"
	"time"

	"MinoriAI/internal/entity"
)

// Key identifies one distinct advisory lookup.
type Key struct {
	Crop  entity.Crop
	Label string
}

func (k Key) String() string {
	if k.Crop == "" {
		return k.Label
	}
	return k.Crop.String() + "/" + k.Label
}

type KeyMode int

const (
	// KeyByCropAndLabel keys advice on the crop and the label.
	KeyByCropAndLabel KeyMode = iota
	// KeyByLabel keys advice on the label alone.
	KeyByLabel
)

func (m KeyMode) Key(crop entity.Crop, label string) Key {
	if m == KeyByLabel {
		return Key{Label: label}
	}
	return Key{Crop: crop, Label: label}
}

// UnknownPolicy decides whether "I don't know" answers are cached.
type UnknownPolicy int

const (
	// CacheUnknown stores negative answers so a disease missing from the
	// corpus is not asked about again in the same session.
	CacheUnknown UnknownPolicy = iota
	// RetryUnknown hands negative answers back without storing them.
	RetryUnknown
)

type FetchFunc func(ctx context.Context, crop entity.Crop, label string) (Answer, error)

type CacheStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Fetches  int64 `json:"fetches"`
	Failures int64 `json:"failures"`
}

// SolutionCache maps keys to advisory entries for one session. It is not safe
// for concurrent use; the owning session is its only writer.
type SolutionCache struct {
	entries map[Key]entity.AdvisoryEntry
	unknown UnknownPolicy
	now     func() time.Time
	stats   CacheStats
}

type CacheOption func(*SolutionCache)

func WithUnknownPolicy(p UnknownPolicy) CacheOption {
	return func(c *SolutionCache) {
		c.unknown = p
	}
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *SolutionCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewSolutionCache(opts ...CacheOption) *SolutionCache {
	c := &SolutionCache{
		entries: make(map[Key]entity.AdvisoryEntry),
		unknown: CacheUnknown,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached entry for key.
func (c *SolutionCache) Get(key Key) (entity.AdvisoryEntry, bool) {
	entry, ok := c.entries[key]
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return entry, ok
}

// Store converts a fetched answer into an entry and keeps it unless the
// unknown-answer policy says otherwise. The entry is returned either way.
func (c *SolutionCache) Store(key Key, answer Answer) (entity.AdvisoryEntry, bool) {
	entry := entity.AdvisoryEntry{
		Crop:         key.Crop,
		Label:        key.Label,
		Text:         answer.Text,
		Known:        answer.Known,
		Sources:      answer.Sources,
		FetchLatency: answer.Latency,
		FetchedAt:    c.now(),
	}
	if !answer.Known && c.unknown == RetryUnknown {
		return entry, false
	}
	if existing, ok := c.entries[key]; ok {
		return existing, false
	}
	c.entries[key] = entry
	return entry, true
}

// RecordFailure counts a failed fetch. Nothing is stored for the key.
func (c *SolutionCache) RecordFailure() {
	c.stats.Failures++
}

// RecordFetch counts a call to the advisory pipeline.
func (c *SolutionCache) RecordFetch() {
	c.stats.Fetches++
}

// GetOrFetch returns the cached entry for key, or calls fetch exactly once
// and stores its answer. A failed fetch leaves the cache untouched so the
// next miss retries.
func (c *SolutionCache) GetOrFetch(ctx context.Context, key Key, crop entity.Crop, fetch FetchFunc) (entity.AdvisoryEntry, bool, error) {
	if entry, ok := c.Get(key); ok {
		return entry, true, nil
	}

	c.RecordFetch()
	start := c.now()
	answer, err := fetch(ctx, crop, key.Label)
	if err != nil {
		c.RecordFailure()
		return entity.AdvisoryEntry{}, false, fmt.Errorf("%w: %s: %w", ErrAdvisoryFetch, key, err)
	}
	if answer.Latency == 0 {
		answer.Latency = c.now().Sub(start)
	}

	entry, _ := c.Store(key, answer)
	return entry, false, nil
}

func (c *SolutionCache) Len() int {
	return len(c.entries)
}

func (c *SolutionCache) Stats() CacheStats {
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
