package entity

import (
	"image"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Frame is one decoded camera image. It is owned by the capture loop for a
// single iteration and never persisted.
type Frame struct {
	Seq        int64
	Image      image.Image
	CapturedAt time.Time
}

// DetectionResult is the outcome of one successful classification call.
type DetectionResult struct {
	Crop      Crop          `json:"crop"`
	Label     string        `json:"label"`
	IsHealthy bool          `json:"is_healthy"`
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"-"`
}

func NewDetectionResult(crop Crop, label string, at time.Time, latency time.Duration) DetectionResult {
	return DetectionResult{
		Crop:      crop,
		Label:     label,
		IsHealthy: IsHealthyLabel(label),
		Timestamp: at,
		Latency:   latency,
	}
}

// IsHealthyLabel reports whether a classifier label denotes a healthy leaf.
func IsHealthyLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), "healthy")
}

// DisplayName turns "leaf_blight" into "Leaf Blight".
func (d DetectionResult) DisplayName() string {
	words := strings.Fields(strings.ReplaceAll(d.Label, "_", " "))
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// StatusText is the short verdict shown next to a detection.
func (d DetectionResult) StatusText() string {
	if d.IsHealthy {
		return "Healthy"
	}
	return "Disease Detected"
}
