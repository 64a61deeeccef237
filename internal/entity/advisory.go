package entity

import "time"

// AdvisoryEntry is a remediation text fetched once for a cache key and kept
// for the lifetime of the session.
type AdvisoryEntry struct {
	Crop         Crop          `json:"crop,omitempty"`
	Label        string        `json:"label"`
	Text         string        `json:"text"`
	Known        bool          `json:"known"`
	Sources      []string      `json:"sources,omitempty"`
	FetchLatency time.Duration `json:"fetch_latency"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// Summary returns at most n runes of the advisory text, suffixed with "..."
// when it had to be cut.
func (a AdvisoryEntry) Summary(n int) string {
	runes := []rune(a.Text)
	if n <= 0 || len(runes) <= n {
		return a.Text
	}
	return string(runes[:n]) + "..."
}
