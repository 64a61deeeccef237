package detectionHandler

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"MinoriAI/internal/api/detection"
	"MinoriAI/internal/session"

	gorillaws "github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialRealtime(t *testing.T, f *fixture, path string) *gorillaws.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.ShutdownWithTimeout(time.Second) })

	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+ln.Addr().String()+path, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextOfType reads messages until one of the given type arrives.
func nextOfType(t *testing.T, conn *gorillaws.Conn, kind string) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if msg.Type == kind {
			return msg
		}
	}
}

func TestRealtimeWebSocketStreamsResults(t *testing.T) {
	f := newFixture(t, wheatModels("Yellow_Rust"), nil)
	conn := dialRealtime(t, f, "/api/v1/ws/real-time-detection/tab-9?crop=wheat")

	frame := detection.InboundMessage{Type: detection.MessageFrame, Frame: dataURL(t), Crop: "wheat"}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatal(err)
	}

	msg := nextOfType(t, conn, detection.MessageResult)
	var res detection.DetectionResponse
	if err := jsoniter.Unmarshal(msg.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.DetectedDisease != "Yellow_Rust" || res.ClientID != "tab-9" || res.Cached {
		t.Fatalf("unexpected first result %+v", res)
	}

	if err := conn.WriteJSON(frame); err != nil {
		t.Fatal(err)
	}
	msg = nextOfType(t, conn, detection.MessageResult)
	res = detection.DetectionResponse{}
	_ = jsoniter.Unmarshal(msg.Data, &res)
	if !res.Cached {
		t.Fatalf("second result should come from the session cache: %+v", res)
	}
	if f.lookup.count() != 1 {
		t.Fatalf("advisory fetched %d times, want 1", f.lookup.count())
	}
}

func TestRealtimeWebSocketReportsBadInput(t *testing.T) {
	f := newFixture(t, wheatModels("Yellow_Rust"), nil)
	conn := dialRealtime(t, f, "/api/v1/ws/real-time-detection/tab-3")

	if err := conn.WriteJSON(detection.InboundMessage{Type: detection.MessageFrame, Frame: "not-base64!!"}); err != nil {
		t.Fatal(err)
	}

	for {
		msg := nextOfType(t, conn, detection.MessageStatus)
		var st detection.StatusPayload
		_ = jsoniter.Unmarshal(msg.Data, &st)
		if st.Level == session.LevelWarn {
			break
		}
	}
}

func TestRealtimeWebSocketRejectsOversizedBinaryFrame(t *testing.T) {
	f := newFixture(t, wheatModels("Yellow_Rust"), nil)
	conn := dialRealtime(t, f, "/api/v1/ws/real-time-detection/tab-4?crop=wheat")

	if err := conn.WriteMessage(gorillaws.BinaryMessage, hugePNG(t)); err != nil {
		t.Fatal(err)
	}

	for {
		msg := nextOfType(t, conn, detection.MessageStatus)
		var st detection.StatusPayload
		_ = jsoniter.Unmarshal(msg.Data, &st)
		if st.Level == session.LevelWarn {
			if !strings.Contains(st.Message, "exceeds") {
				t.Fatalf("unexpected warning %q", st.Message)
			}
			break
		}
	}
	if f.lookup.count() != 0 {
		t.Fatal("oversized frame must not reach the pipeline")
	}
}

func TestRealtimeWebSocketEnforcesReadLimit(t *testing.T) {
	f := newFixture(t, wheatModels("Yellow_Rust"), nil)
	conn := dialRealtime(t, f, "/api/v1/ws/real-time-detection/tab-5")

	if err := conn.WriteMessage(gorillaws.BinaryMessage, make([]byte, wsMaxMessageBytes+1)); err != nil {
		// The server may drop the connection before the whole frame is sent.
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if gorillaws.IsCloseError(err, gorillaws.CloseMessageTooBig) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("server kept the connection open after an oversized message")
			}
			return
		}
	}
}
