// Package advisory turns a (crop, disease) pair into remediation guidance and
// keeps the per-session cache that guarantees each disease is looked up once.
package advisory

import (
	"context"
	"errors"
	"strings"
	"time"

	"MinoriAI/internal/entity"
)

var (
	ErrAdvisoryFetch = errors.New("advisory fetch failed")
	ErrEmptyAnswer   = errors.New("advisory pipeline returned an empty answer")
)

// UnknownText is what the pipeline answers when the corpus has nothing
// relevant for a disease.
const UnknownText = "I don't know"

// HealthyText is shown for healthy leaves instead of a remediation lookup.
const HealthyText = "Plant appears healthy. Continue regular monitoring."

// Answer is one advisory lookup result.
type Answer struct {
	Text    string        `json:"text"`
	Known   bool          `json:"known"`
	Sources []string      `json:"sources,omitempty"`
	Latency time.Duration `json:"-"`
}

// Lookup answers "how do I treat disease on crop". Implementations may be
// slow (seconds) and may fail.
type Lookup interface {
	Fetch(ctx context.Context, crop entity.Crop, disease string) (Answer, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, crop entity.Crop, disease string) (Answer, error)

func (f LookupFunc) Fetch(ctx context.Context, crop entity.Crop, disease string) (Answer, error) {
	return f(ctx, crop, disease)
}

// IsUnknownAnswer reports whether text is the pipeline's "no relevant
// context" reply.
func IsUnknownAnswer(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.ReplaceAll(t, "’", "'")
	t = strings.TrimLeft(t, "\"'*` ")
	return strings.HasPrefix(t, "i don't know") ||
		strings.HasPrefix(t, "i dont know") ||
		strings.HasPrefix(t, "i do not know")
}

// HumanizeLabel converts a classifier label into the phrase used in prompts
// and cache keys ("Leaf_Blight" -> "leaf blight").
func HumanizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(label, "_", " "))), " ")
}
