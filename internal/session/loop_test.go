package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"MinoriAI/internal/entity"
	"MinoriAI/internal/sampler"
	"MinoriAI/pkg/camera"
)

// recordingSink forwards every view to a channel.
type recordingSink struct {
	views chan View
}

func newRecordingSink() *recordingSink {
	return &recordingSink{views: make(chan View, 256)}
}

func (r *recordingSink) Render(_ context.Context, v View) error {
	r.views <- v
	return nil
}

func (r *recordingSink) nextFresh(t *testing.T) View {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v := <-r.views:
			if v.Fresh {
				return v
			}
		case <-timeout:
			t.Fatal("timed out waiting for a result")
		}
	}
}

func (r *recordingSink) nextFrame(t *testing.T) View {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v := <-r.views:
			if v.Frame != nil {
				return v
			}
		case <-timeout:
			t.Fatal("timed out waiting for a frame")
		}
	}
}

func pushFrame(t *testing.T, src *camera.Channel) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !src.Push(leaf()) {
		if time.Now().After(deadline) {
			t.Fatal("loop is not consuming frames")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoopWheatYellowRustFetchesOnce(t *testing.T) {
	wheat := &scriptedClassifier{crop: entity.CropWheat, labels: []string{"Yellow_Rust"}}
	lookup := newCountingLookup()
	s := New("ws-1", Config{Crop: entity.CropWheat, Sampler: sampler.Always{}}, models{entity.CropWheat: wheat}, lookup, quietLogger())

	sink := newRecordingSink()
	loop := NewLoop(s, sink, quietLogger())
	src := camera.NewChannel(1)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background(), src) }()

	var advice []string
	for i := 0; i < 3; i++ {
		pushFrame(t, src)
		v := sink.nextFresh(t)
		if v.Detection == nil || v.Detection.Label != "Yellow_Rust" {
			t.Fatalf("frame %d: unexpected detection %+v", i, v.Detection)
		}
		if v.Advice == nil {
			t.Fatalf("frame %d: no advice", i)
		}
		if want := i > 0; v.Cached != want {
			t.Errorf("frame %d: cached = %v", i, v.Cached)
		}
		advice = append(advice, v.Advice.Text)
	}

	loop.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if loop.State() != StateStopped {
		t.Errorf("state = %s", loop.State())
	}

	if lookup.total() != 1 {
		t.Fatalf("expected 1 advisory fetch, got %d", lookup.total())
	}
	if advice[1] != advice[0] || advice[2] != advice[0] {
		t.Errorf("advice differs across frames: %q", advice)
	}
	if st := s.CacheStats(); st.Hits != 2 || st.Fetches != 1 || st.Entries != 1 {
		t.Errorf("unexpected cache stats %+v", st)
	}
}

func TestLoopCropChangeAppliesToQueuedFrame(t *testing.T) {
	for i := 0; i < 20; i++ {
		wheat := &scriptedClassifier{crop: entity.CropWheat, labels: []string{"Yellow_Rust"}}
		rice := &scriptedClassifier{crop: entity.CropRice, labels: []string{"Healthy"}}
		s := New("ws-crop", Config{Crop: entity.CropWheat, Sampler: sampler.Always{}},
			models{entity.CropWheat: wheat, entity.CropRice: rice}, newCountingLookup(), quietLogger())

		sink := newRecordingSink()
		loop := NewLoop(s, sink, quietLogger())
		src := camera.NewChannel(1)

		// Both the crop change and the frame are ready before the loop starts.
		loop.SetCrop(entity.CropRice)
		if !src.Push(leaf()) {
			t.Fatal("push rejected")
		}

		done := make(chan error, 1)
		go func() { done <- loop.Run(context.Background(), src) }()

		v := sink.nextFresh(t)
		if v.Detection == nil || v.Detection.Crop != entity.CropRice {
			t.Fatalf("run %d: frame classified as %+v, want rice", i, v.Detection)
		}

		loop.Stop()
		if err := <-done; err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if wheat.calls != 0 {
			t.Fatalf("run %d: wheat model called %d times", i, wheat.calls)
		}
	}
}

func TestLoopAdvisoryFailureShowsDetectionAndRetries(t *testing.T) {
	rice := &scriptedClassifier{crop: entity.CropRice, labels: []string{"Leaf_Blast"}}
	lookup := newCountingLookup()
	lookup.fail = 1
	s := New("ws-2", Config{Crop: entity.CropRice, Sampler: sampler.Always{}}, models{entity.CropRice: rice}, lookup, quietLogger())

	sink := newRecordingSink()
	loop := NewLoop(s, sink, quietLogger())
	src := camera.NewChannel(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, src) }()

	pushFrame(t, src)
	v := sink.nextFresh(t)
	if v.Detection == nil || v.Advice != nil || v.Status.Level != LevelWarn {
		t.Fatalf("expected detection without advice, got %+v", v)
	}

	pushFrame(t, src)
	v = sink.nextFresh(t)
	if v.Advice == nil || v.Cached {
		t.Fatalf("second cycle should fetch again, got %+v", v)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if lookup.total() != 2 {
		t.Errorf("expected 2 fetches, got %d", lookup.total())
	}
}

func TestLoopCooldownSkipsFrames(t *testing.T) {
	rice := &scriptedClassifier{crop: entity.CropRice, labels: []string{"Healthy"}}
	s := New("ws-3", Config{Crop: entity.CropRice, Sampler: sampler.Cooldown{Interval: time.Hour}}, models{entity.CropRice: rice}, newCountingLookup(), quietLogger())

	sink := newRecordingSink()
	loop := NewLoop(s, sink, quietLogger())
	src := camera.NewChannel(1)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background(), src) }()

	pushFrame(t, src)
	sink.nextFresh(t)

	for i := 0; i < 3; i++ {
		pushFrame(t, src)
		if v := sink.nextFrame(t); v.State != StateSampling {
			t.Errorf("frame %d inside the cooldown should not be analysed, state %s", i, v.State)
		}
	}

	loop.TriggerNow()
	// Give the loop a chance to take the trigger before the frame.
	time.Sleep(20 * time.Millisecond)
	pushFrame(t, src)
	sink.nextFresh(t)

	src.Close()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	rice.mu.Lock()
	calls := rice.calls
	rice.mu.Unlock()
	if calls != 2 {
		t.Errorf("expected 2 classifications (first frame and Detect Now), got %d", calls)
	}
}

func TestLoopCameraLost(t *testing.T) {
	s := New("ws-4", Config{}, models{}, newCountingLookup(), quietLogger())
	loop := NewLoop(s, newRecordingSink(), quietLogger())

	err := loop.Run(context.Background(), camera.NewDirectory(t.TempDir(), false, 0))
	if !errors.Is(err, camera.ErrCameraLost) {
		t.Fatalf("expected ErrCameraLost, got %v", err)
	}
	if loop.State() != StateStopped {
		t.Errorf("state = %s", loop.State())
	}
}
