package session

import (
	"context"
	"errors"

	"MinoriAI/internal/entity"
)

// State is the loop's position in the detection cycle.
type State string

const (
	StateIdle        State = "IDLE"
	StateSampling    State = "SAMPLING"
	StateClassifying State = "CLASSIFYING"
	StateLookingUp   State = "LOOKING_UP"
	StateDisplaying  State = "DISPLAYING"
	StateStopped     State = "STOPPED"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Status struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// View is what a Sink draws. Frame is set for every camera frame. Fresh is
// true only when an analysis cycle has just completed.
type View struct {
	SessionID string
	Frame     *entity.Frame
	Detection *entity.DetectionResult
	Advice    *entity.AdvisoryEntry
	Cached    bool
	Status    Status
	State     State
	Fresh     bool
}

// Sink presents views to the user.
type Sink interface {
	Render(ctx context.Context, v View) error
}

type SinkFunc func(ctx context.Context, v View) error

func (f SinkFunc) Render(ctx context.Context, v View) error {
	return f(ctx, v)
}

// Multi fans a view out to every sink, returning the joined errors.
type Multi []Sink

func (m Multi) Render(ctx context.Context, v View) error {
	var errs []error
	for _, s := range m {
		if err := s.Render(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
