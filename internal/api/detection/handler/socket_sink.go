package detectionHandler

import (
	"sync"
	"time"

	"MinoriAI/internal/api/detection"
	"MinoriAI/internal/session"

	"golang.org/x/net/context"
)

type jsonConn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
}

// socketSink presents loop views to the browser. A result message goes out
// for each completed cycle, a status message whenever the status or the
// loop state changes. Frames are not echoed back.
type socketSink struct {
	conn     jsonConn
	clientID string
	timeout  time.Duration

	mu   sync.Mutex
	last detection.StatusPayload
}

func newSocketSink(conn jsonConn, clientID string, timeout time.Duration) *socketSink {
	return &socketSink{conn: conn, clientID: clientID, timeout: timeout}
}

func (s *socketSink) Render(_ context.Context, v session.View) error {
	if v.Fresh && v.Detection != nil {
		processing := v.Detection.Latency
		if v.Advice != nil && !v.Cached {
			processing += v.Advice.FetchLatency
		}
		resp := detection.NewDetectionResponse(s.clientID, *v.Detection, v.Advice, v.Cached, processing)
		if v.Advice == nil && v.Status.Level != session.LevelInfo {
			resp.Error = v.Status.Message
		}
		if err := s.send(detection.MessageResult, resp); err != nil {
			return err
		}
	}

	if v.State == "" && v.Status.Message == "" {
		return nil
	}
	return s.status(detection.StatusPayload{
		State:   v.State,
		Level:   v.Status.Level,
		Message: v.Status.Message,
	})
}

// status sends p unless it repeats the previous status.
func (s *socketSink) status(p detection.StatusPayload) error {
	if p.Level == "" {
		p.Level = session.LevelInfo
	}

	s.mu.Lock()
	if p.State == "" {
		p.State = s.last.State
	}
	if p.Message == "" && p.State == s.last.State {
		s.mu.Unlock()
		return nil
	}
	if p == s.last {
		s.mu.Unlock()
		return nil
	}
	s.last = p
	s.mu.Unlock()

	return s.send(detection.MessageStatus, p)
}

func (s *socketSink) send(kind string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(detection.OutboundMessage{Type: kind, Data: data}); err != nil {
		return err
	}
	return s.conn.SetWriteDeadline(time.Time{})
}
