package detectionService

import (
	"errors"
	"image"

	"MinoriAI/internal/entity"
	"MinoriAI/internal/session"
	"MinoriAI/pkg/camera"
	"MinoriAI/pkg/utils"

	"golang.org/x/net/context"
)

// ErrFrameDropped is returned by PushFrame when the loop has not consumed
// the previous frame yet.
var ErrFrameDropped = errors.New("frame dropped")

// Stream is one real-time detection connection: frames pushed by the
// transport feed a dedicated session loop.
type Stream struct {
	session *session.Session
	loop    *session.Loop
	frames  *camera.Channel
	utils   utils.IUtils
}

func (s *detectionService) OpenStream(clientID string, crop entity.Crop, sink session.Sink) *Stream {
	sess := s.sessions.New(clientID)
	if crop != "" {
		sess.SetCrop(crop)
	}

	recorder := session.SinkFunc(func(ctx context.Context, v session.View) error {
		if v.Fresh && v.Detection != nil {
			processing := v.Detection.Latency
			if v.Advice != nil && !v.Cached {
				processing += v.Advice.FetchLatency
			}
			s.record(ctx, sess.ID(), *v.Detection, v.Advice, processing)
		}
		return nil
	})

	return &Stream{
		session: sess,
		loop:    session.NewLoop(sess, session.Multi{sink, recorder}, s.log),
		frames:  camera.NewChannel(1),
		utils:   s.utils,
	}
}

func (st *Stream) ID() string {
	return st.session.ID()
}

// PushFrame decodes a data URL frame and hands it to the loop without
// waiting. A busy loop drops the frame.
func (st *Stream) PushFrame(frame string) error {
	img, err := st.utils.DecodeDataURL(frame)
	if err != nil {
		return err
	}
	return st.PushImage(img)
}

func (st *Stream) PushImage(img image.Image) error {
	if !st.frames.Push(img) {
		return ErrFrameDropped
	}
	return nil
}

func (st *Stream) TriggerNow() {
	st.loop.TriggerNow()
}

func (st *Stream) SetCrop(crop entity.Crop) {
	st.loop.SetCrop(crop)
}

func (st *Stream) State() session.State {
	return st.loop.State()
}

// Run blocks until ctx is done or Close is called.
func (st *Stream) Run(ctx context.Context) error {
	return st.loop.Run(ctx, st.frames)
}

// Close ends the frame stream; Run returns once the loop drains.
func (st *Stream) Close() error {
	return st.frames.Close()
}
