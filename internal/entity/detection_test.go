package entity

import (
	"errors"
	"testing"
	"time"
)

func TestIsHealthyLabel(t *testing.T) {
	cases := map[string]bool{
		"Healthy":          true,
		"healthy":          true,
		"HEALTHY":          true,
		"healthy_leaf":     true,
		"Tomato___healthy": true,
		"leaf_blight":      false,
		"Yellow_Rust":      false,
		"":                 false,
	}
	for label, want := range cases {
		if got := IsHealthyLabel(label); got != want {
			t.Errorf("IsHealthyLabel(%q) = %v, want %v", label, got, want)
		}
	}
}

func TestNewDetectionResult(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	d := NewDetectionResult(CropRice, "Brown_Spot", at, 40*time.Millisecond)
	if d.IsHealthy || d.StatusText() != "Disease Detected" {
		t.Fatalf("diseased leaf reported as %+v / %q", d, d.StatusText())
	}
	if !d.Timestamp.Equal(at) || d.Latency != 40*time.Millisecond {
		t.Fatalf("timing not kept: %+v", d)
	}

	d = NewDetectionResult(CropWheat, "Healthy", at, 0)
	if !d.IsHealthy || d.StatusText() != "Healthy" {
		t.Fatalf("healthy leaf reported as %+v / %q", d, d.StatusText())
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"leaf_blight":      "Leaf Blight",
		"Yellow_Rust":      "Yellow Rust",
		"BROWN_SPOT":       "Brown Spot",
		"Tomato___healthy": "Tomato Healthy",
		"Healthy":          "Healthy",
	}
	for label, want := range cases {
		d := DetectionResult{Label: label}
		if got := d.DisplayName(); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestCropParseAndTitle(t *testing.T) {
	for raw, want := range map[string]Crop{"rice": CropRice, " Wheat ": CropWheat, "RICE": CropRice} {
		got, err := ParseCrop(raw)
		if err != nil || got != want {
			t.Errorf("ParseCrop(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseCrop("maize"); !errors.Is(err, ErrUnknownCrop) {
		t.Errorf("ParseCrop(maize) = %v, want ErrUnknownCrop", err)
	}

	if CropRice.Title() != "Rice" || CropWheat.Title() != "Wheat" {
		t.Errorf("titles = %q, %q", CropRice.Title(), CropWheat.Title())
	}
}

func TestAdvisorySummary(t *testing.T) {
	a := AdvisoryEntry{Text: "Apply potash fertiliser"}
	if got := a.Summary(5); got != "Apply..." {
		t.Errorf("Summary(5) = %q", got)
	}
	if got := a.Summary(200); got != a.Text {
		t.Errorf("short text should be kept whole, got %q", got)
	}
}
