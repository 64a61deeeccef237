// Package classifier maps a leaf photograph to one of a crop's disease
// labels.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"strings"

	"MinoriAI/internal/entity"

	jsoniter "github.com/json-iterator/go"
)

var (
	ErrModelUnavailable = errors.New("classifier model unavailable")
	ErrClassification   = errors.New("classification failed")
)

// Classifier is one crop's disease model.
type Classifier interface {
	Crop() entity.Crop
	Labels() []string
	Classify(ctx context.Context, img image.Image) (string, error)
}

// Vocabulary is the ordered label list of a model; position i is output i.
type Vocabulary []string

// ParseVocabulary reads a class-indices document ({"label": index}). The
// indices must be exactly 0..N-1.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var indices map[string]int
	if err := jsoniter.Unmarshal(data, &indices); err != nil {
		return nil, fmt.Errorf("decode class indices: %w", err)
	}
	if len(indices) == 0 {
		return nil, errors.New("class indices are empty")
	}

	vocab := make(Vocabulary, len(indices))
	seen := make([]bool, len(indices))
	for label, idx := range indices {
		if idx < 0 || idx >= len(indices) {
			return nil, fmt.Errorf("class index %d for %q out of range 0..%d", idx, label, len(indices)-1)
		}
		if seen[idx] {
			return nil, fmt.Errorf("class index %d used twice", idx)
		}
		seen[idx] = true
		vocab[idx] = label
	}
	return vocab, nil
}

func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read class indices: %w", err)
	}
	return ParseVocabulary(data)
}

// Lookup returns the vocabulary label matching s after normalisation.
func (v Vocabulary) Lookup(s string) (string, bool) {
	want := normalizeLabel(s)
	for _, label := range v {
		if normalizeLabel(label) == want {
			return label, true
		}
	}
	return "", false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`.*: \n")
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

// Argmax returns the index of the largest probability, the first one on
// ties.
func Argmax(probs []float32) int {
	best := -1
	for i, p := range probs {
		if best < 0 || p > probs[best] {
			best = i
		}
	}
	return best
}

// Registry holds one classifier per crop. It is built once at startup and
// read-only afterwards.
type Registry struct {
	models map[entity.Crop]Classifier
}

func NewRegistry(classifiers ...Classifier) (*Registry, error) {
	r := &Registry{models: make(map[entity.Crop]Classifier, len(classifiers))}
	for _, c := range classifiers {
		if _, dup := r.models[c.Crop()]; dup {
			return nil, fmt.Errorf("duplicate classifier for %s", c.Crop())
		}
		r.models[c.Crop()] = c
	}
	return r, nil
}

// Factory builds the classifier for one crop.
type Factory func(ctx context.Context, crop entity.Crop) (Classifier, error)

// LoadRegistry builds a classifier for every crop. The first failure aborts
// the load, closing whatever was already opened.
func LoadRegistry(ctx context.Context, crops []entity.Crop, factory Factory) (*Registry, error) {
	var loaded []Classifier
	for _, crop := range crops {
		c, err := factory(ctx, crop)
		if err != nil {
			closeAll(loaded)
			if errors.Is(err, ErrModelUnavailable) {
				return nil, fmt.Errorf("%s: %w", crop, err)
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, crop, err)
		}
		loaded = append(loaded, c)
	}
	return NewRegistry(loaded...)
}

func (r *Registry) Get(crop entity.Crop) (Classifier, error) {
	c, ok := r.models[crop]
	if !ok {
		return nil, fmt.Errorf("%w: no model for %s", ErrModelUnavailable, crop)
	}
	return c, nil
}

// Crops returns the crops with a loaded model, sorted.
func (r *Registry) Crops() []entity.Crop {
	crops := make([]entity.Crop, 0, len(r.models))
	for c := range r.models {
		crops = append(crops, c)
	}
	sort.Slice(crops, func(i, j int) bool { return crops[i] < crops[j] })
	return crops
}

func (r *Registry) Close() {
	for _, c := range r.models {
		closeOne(c)
	}
}

func closeAll(cs []Classifier) {
	for _, c := range cs {
		closeOne(c)
	}
}

func closeOne(c Classifier) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}
