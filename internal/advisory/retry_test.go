package advisory

import (
	"context"
	"errors"
	"testing"
	"time"

	"MinoriAI/internal/entity"
)

func TestRetryingRecoversWithBackoff(t *testing.T) {
	calls := 0
	inner := LookupFunc(func(context.Context, entity.Crop, string) (Answer, error) {
		calls++
		if calls < 3 {
			return Answer{}, errors.New("503")
		}
		return Answer{Text: "ok", Known: true}, nil
	})

	var waits []time.Duration
	r := NewRetrying(inner, quietLogger(),
		WithRetryAttempts(3),
		WithRetryBackoff(500*time.Millisecond, 5*time.Second),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}),
	)

	answer, err := r.Fetch(context.Background(), entity.CropRice, "blast")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if answer.Text != "ok" || calls != 3 {
		t.Errorf("answer %q after %d calls", answer.Text, calls)
	}
	if len(waits) != 2 || waits[0] != 500*time.Millisecond || waits[1] != time.Second {
		t.Errorf("unexpected waits %v", waits)
	}
}

func TestRetryingGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	inner := LookupFunc(func(context.Context, entity.Crop, string) (Answer, error) {
		calls++
		return Answer{}, boom
	})

	r := NewRetrying(inner, quietLogger(), WithSleeper(func(context.Context, time.Duration) error { return nil }))
	if _, err := r.Fetch(context.Background(), entity.CropRice, "blast"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if calls != defaultRetryAttempts {
		t.Errorf("expected %d calls, got %d", defaultRetryAttempts, calls)
	}
}

func TestRetryingStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	inner := LookupFunc(func(context.Context, entity.Crop, string) (Answer, error) {
		calls++
		cancel()
		return Answer{}, errors.New("fail")
	})

	r := NewRetrying(inner, quietLogger(), WithRetryAttempts(5))
	if _, err := r.Fetch(ctx, entity.CropRice, "blast"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single call after cancel, got %d", calls)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	r := NewRetrying(nil, quietLogger(), WithRetryBackoff(time.Second, 3*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := r.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
