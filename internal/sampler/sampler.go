// Package sampler decides which camera frames are eligible for analysis.
package sampler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultEvery    = 30
	DefaultCooldown = 3 * time.Second
)

var ErrInvalidPolicy = errors.New("invalid sampling policy")

// State is the per-session throttle bookkeeping. The zero value is a fresh
// session: counter 0 and no previous fire.
type State struct {
	Counter  int64
	LastFire time.Time
}

// Advance counts one observed frame.
func (s *State) Advance() {
	s.Counter++
}

// MarkFired records that a frame was taken for analysis at now.
func (s *State) MarkFired(now time.Time) {
	s.LastFire = now
}

// Sampler is a side-effect free predicate over State. Callers own the state
// and update it with Advance and MarkFired.
type Sampler interface {
	ShouldSample(st State, now time.Time) bool
	Name() string
}

// FrameCount fires on every Every-th frame, starting with the first one.
type FrameCount struct {
	Every int64
}

func (p FrameCount) ShouldSample(st State, _ time.Time) bool {
	every := p.Every
	if every < 1 {
		every = 1
	}
	return st.Counter%every == 0
}

func (p FrameCount) Name() string {
	return fmt.Sprintf("frames(every=%d)", p.Every)
}

// Cooldown fires when at least Interval has passed since the last fire.
type Cooldown struct {
	Interval time.Duration
}

func (p Cooldown) ShouldSample(st State, now time.Time) bool {
	if st.LastFire.IsZero() {
		return true
	}
	return now.Sub(st.LastFire) >= p.Interval
}

func (p Cooldown) Name() string {
	return fmt.Sprintf("cooldown(%s)", p.Interval)
}

// Always makes every frame eligible.
type Always struct{}

func (Always) ShouldSample(State, time.Time) bool { return true }

func (Always) Name() string { return "always" }

// Parse builds a policy from its configuration name: "frames", "cooldown" or
// "always".
func Parse(name string, every int64, cooldown time.Duration) (Sampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "frames", "frame", "count":
		if every < 1 {
			return nil, fmt.Errorf("%w: frame interval must be at least 1, got %d", ErrInvalidPolicy, every)
		}
		return FrameCount{Every: every}, nil
	case "cooldown", "":
		if cooldown < 0 {
			return nil, fmt.Errorf("%w: negative cooldown %s", ErrInvalidPolicy, cooldown)
		}
		return Cooldown{Interval: cooldown}, nil
	case "always":
		return Always{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown policy %q", ErrInvalidPolicy, name)
	}
}
