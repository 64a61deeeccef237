package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/entity"
	"MinoriAI/pkg/camera"

	"github.com/sirupsen/logrus"
)

type jobKind int

const (
	jobClassify jobKind = iota
	jobFetch
)

type job struct {
	kind      jobKind
	frame     *entity.Frame
	crop      entity.Crop
	detection entity.DetectionResult
}

type jobResult struct {
	job
	answer advisory.Answer
	err    error
}

type frameResult struct {
	frame *entity.Frame
	err   error
}

// Loop drives a Session from a camera source. The loop goroutine is the only
// writer of the session's throttle state and cache; classification and
// advisory calls run on one worker goroutine and report back over a
// channel. Frames that arrive while the worker is busy are shown but never
// analysed.
type Loop struct {
	session *Session
	sink    Sink
	log     *logrus.Logger

	trigger chan struct{}
	crops   chan entity.Crop
	stop    chan struct{}
	once    sync.Once
	state   atomic.Value
}

func NewLoop(s *Session, sink Sink, log *logrus.Logger) *Loop {
	l := &Loop{
		session: s,
		sink:    sink,
		log:     log,
		trigger: make(chan struct{}, 1),
		crops:   make(chan entity.Crop, 1),
		stop:    make(chan struct{}),
	}
	l.state.Store(StateIdle)
	return l
}

func (l *Loop) State() State {
	return l.state.Load().(State)
}

// TriggerNow makes the next frame eligible regardless of the sampling
// policy.
func (l *Loop) TriggerNow() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// SetCrop switches the crop. It takes effect from the next cycle.
func (l *Loop) SetCrop(crop entity.Crop) {
	for {
		select {
		case l.crops <- crop:
			return
		default:
		}
		select {
		case <-l.crops:
		default:
		}
	}
}

func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Run processes frames until the context is cancelled, Stop is called or
// the source ends. A lost camera is returned as an error.
func (l *Loop) Run(ctx context.Context, src camera.Source) error {
	l.setState(StateIdle)

	if err := src.Open(ctx); err != nil {
		l.stopped(ctx, Status{Level: LevelError, Message: "Could not open camera: " + err.Error()})
		return err
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	jobs := make(chan job)
	results := make(chan jobResult, 1)
	frames := make(chan frameResult)

	wg.Add(2)
	go func() {
		defer wg.Done()
		l.work(ctx, jobs, results)
	}()
	go func() {
		defer wg.Done()
		read(ctx, src, frames)
	}()
	defer wg.Wait()
	defer cancel()

	s := l.session
	busy := false
	force := false
	var pendingCrop entity.Crop

	l.setState(StateSampling)
	l.emit(ctx, View{State: StateSampling, Status: Status{Level: LevelInfo, Message: "Camera started"}})

	for {
		select {
		case <-ctx.Done():
			l.stopped(context.WithoutCancel(ctx), Status{Level: LevelInfo, Message: "Stopped"})
			return nil

		case <-l.stop:
			l.stopped(ctx, Status{Level: LevelInfo, Message: "Stopped"})
			return nil

		case <-l.trigger:
			force = true

		case crop := <-l.crops:
			pendingCrop = l.switchCrop(ctx, crop, busy)

		case fr := <-frames:
			if fr.err != nil {
				switch {
				case errors.Is(fr.err, io.EOF):
					l.stopped(ctx, Status{Level: LevelInfo, Message: "Camera stream ended"})
					return nil
				case errors.Is(fr.err, context.Canceled), errors.Is(fr.err, context.DeadlineExceeded):
					continue
				case errors.Is(fr.err, camera.ErrFrameCapture):
					l.emit(ctx, View{State: l.State(), Status: Status{Level: LevelWarn, Message: "Failed to capture frame"}})
					continue
				default:
					l.stopped(ctx, Status{Level: LevelError, Message: "Camera lost: " + fr.err.Error()})
					return fmt.Errorf("%w: %w", camera.ErrCameraLost, fr.err)
				}
			}

			// A crop change queued alongside this frame applies before it is sampled.
		drain:
			for {
				select {
				case crop := <-l.crops:
					pendingCrop = l.switchCrop(ctx, crop, busy)
				default:
					break drain
				}
			}

			s.mu.Lock()
			now := s.now()
			eligible := !busy && (force || s.cfg.Sampler.ShouldSample(s.throttle, now))
			s.throttle.Advance()
			if eligible {
				s.throttle.MarkFired(now)
			}
			crop := s.crop
			s.touch()
			latest := s.latest
			s.mu.Unlock()

			if eligible {
				force = false
				busy = true
				l.setState(StateClassifying)
				if !dispatch(ctx, jobs, job{kind: jobClassify, frame: fr.frame, crop: crop}) {
					continue
				}
			}

			v := View{Frame: fr.frame, State: l.State()}
			if latest != nil {
				v.Detection = &latest.Detection
				v.Advice = latest.Advice
				v.Cached = latest.Cached
			}
			l.emit(ctx, v)

		case res := <-results:
			if next, done := l.handle(ctx, res); !done {
				dispatch(ctx, jobs, next)
				continue
			}
			busy = false
			if pendingCrop != "" {
				s.SetCrop(pendingCrop)
				l.emit(ctx, View{State: StateSampling, Status: Status{Level: LevelInfo, Message: "Crop set to " + pendingCrop.Title()}})
				pendingCrop = ""
			}
			l.setState(StateSampling)
		}
	}
}

// switchCrop applies crop right away when the worker is idle. Otherwise it
// returns crop as the change to apply once the current cycle finishes.
func (l *Loop) switchCrop(ctx context.Context, crop entity.Crop, busy bool) entity.Crop {
	if busy {
		return crop
	}
	l.session.SetCrop(crop)
	l.emit(ctx, View{State: l.State(), Status: Status{Level: LevelInfo, Message: "Crop set to " + crop.Title()}})
	return ""
}

// handle folds a worker result into the session. It returns the follow-up
// job when an advisory fetch is needed.
func (l *Loop) handle(ctx context.Context, res jobResult) (job, bool) {
	s := l.session

	switch res.kind {
	case jobClassify:
		if res.err != nil {
			l.emit(ctx, View{State: StateSampling, Status: Status{Level: LevelWarn, Message: "Classification failed: " + res.err.Error()}})
			return job{}, true
		}

		d := res.detection
		if d.IsHealthy {
			advice := healthyAdvice(d, s.now())
			l.display(ctx, Outcome{Detection: d, Advice: &advice})
			return job{}, true
		}

		s.mu.Lock()
		entry, hit := s.cache.Get(s.cfg.KeyMode.Key(d.Crop, d.Label))
		if !hit {
			s.cache.RecordFetch()
		}
		s.mu.Unlock()

		if hit {
			l.display(ctx, Outcome{Detection: d, Advice: &entry, Cached: true})
			return job{}, true
		}

		l.setState(StateLookingUp)
		l.emit(ctx, View{
			Detection: &d,
			State:     StateLookingUp,
			Status:    Status{Level: LevelInfo, Message: "Fetching advice for " + d.DisplayName()},
		})
		return job{kind: jobFetch, crop: d.Crop, detection: d}, false

	default:
		d := res.detection
		key := s.cfg.KeyMode.Key(d.Crop, d.Label)
		if res.err != nil {
			s.mu.Lock()
			s.cache.RecordFailure()
			s.latest = &Outcome{Detection: d}
			s.mu.Unlock()

			l.setState(StateDisplaying)
			l.emit(ctx, View{
				Detection: &d,
				State:     StateDisplaying,
				Fresh:     true,
				Status:    Status{Level: LevelWarn, Message: "Advice unavailable: " + res.err.Error()},
			})
			return job{}, true
		}

		s.mu.Lock()
		entry, _ := s.cache.Store(key, res.answer)
		s.mu.Unlock()
		l.display(ctx, Outcome{Detection: d, Advice: &entry})
		return job{}, true
	}
}

func (l *Loop) display(ctx context.Context, out Outcome) {
	s := l.session
	s.mu.Lock()
	s.latest = &out
	s.mu.Unlock()

	l.setState(StateDisplaying)
	l.emit(ctx, View{
		Detection: &out.Detection,
		Advice:    out.Advice,
		Cached:    out.Cached,
		State:     StateDisplaying,
		Fresh:     true,
	})
}

func (l *Loop) work(ctx context.Context, jobs <-chan job, results chan<- jobResult) {
	s := l.session
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-jobs:
			res := jobResult{job: j}
			switch j.kind {
			case jobClassify:
				res.detection, res.err = s.classify(ctx, j.crop, j.frame.Image)
			case jobFetch:
				res.answer, res.err = s.fetch(ctx, j.crop, j.detection.Label)
			}
			results <- res
		}
	}
}

func dispatch(ctx context.Context, jobs chan<- job, j job) bool {
	select {
	case jobs <- j:
		return true
	case <-ctx.Done():
		return false
	}
}

func read(ctx context.Context, src camera.Source, out chan<- frameResult) {
	for {
		f, err := src.Read(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- frameResult{frame: f, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, camera.ErrFrameCapture) {
			return
		}
	}
}

func (l *Loop) setState(st State) {
	l.state.Store(st)
}

func (l *Loop) stopped(ctx context.Context, status Status) {
	l.setState(StateStopped)
	l.emit(ctx, View{State: StateStopped, Status: status})
}

func (l *Loop) emit(ctx context.Context, v View) {
	v.SessionID = l.session.id
	if err := l.sink.Render(ctx, v); err != nil {
		l.log.WithFields(logrus.Fields{
			"session": l.session.id,
			"state":   v.State,
			"error":   err.Error(),
		}).Warn("Failed to render view")
	}
}
