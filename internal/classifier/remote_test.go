package classifier

import (
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"MinoriAI/internal/entity"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// sidecar emulates the model server: it describes a model with the given
// number of outputs and answers every tensor with reply.
func sidecar(t *testing.T, outputs int, reply string, tensors *atomic.Int64) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch mt {
			case websocket.TextMessage:
				if !strings.Contains(string(msg), `"describe"`) {
					t.Errorf("unexpected text message %s", msg)
				}
				_ = conn.WriteJSON(map[string]any{"outputs": outputs, "input": []int{64, 64, 3}})
			case websocket.BinaryMessage:
				if len(msg) != 64*64*3*4 {
					t.Errorf("tensor has %d bytes", len(msg))
				}
				if tensors != nil {
					tensors.Add(1)
				}
				_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRemoteClassify(t *testing.T) {
	var tensors atomic.Int64
	srv := sidecar(t, 3, `{"probabilities":[0.05,0.15,0.8]}`, &tensors)

	r, err := NewRemote(context.Background(), RemoteConfig{
		Crop:   entity.CropWheat,
		URL:    wsURL(srv),
		Labels: Vocabulary{"Brown_Rust", "Healthy", "Yellow_Rust"},
	}, quietLogger())
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	defer r.Close()

	label, err := r.Classify(context.Background(), image.NewRGBA(image.Rect(0, 0, 200, 100)))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if label != "Yellow_Rust" {
		t.Errorf("label = %q", label)
	}
	if tensors.Load() != 1 {
		t.Errorf("expected one tensor, got %d", tensors.Load())
	}
}

func TestRemoteRejectsOutputMismatch(t *testing.T) {
	srv := sidecar(t, 4, `{}`, nil)

	_, err := NewRemote(context.Background(), RemoteConfig{
		Crop:   entity.CropRice,
		URL:    wsURL(srv),
		Labels: Vocabulary{"Bacterial_Leaf_Blight", "Brown_Spot", "Leaf_Smut"},
	}, quietLogger())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	_, err := NewRemote(context.Background(), RemoteConfig{
		Crop:   entity.CropRice,
		URL:    url,
		Labels: Vocabulary{"Healthy"},
	}, quietLogger())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestRemoteWrongProbabilityLength(t *testing.T) {
	srv := sidecar(t, 2, `{"probabilities":[1]}`, nil)

	r, err := NewRemote(context.Background(), RemoteConfig{
		Crop:   entity.CropRice,
		URL:    wsURL(srv),
		Labels: Vocabulary{"Healthy", "Leaf_Smut"},
	}, quietLogger())
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	defer r.Close()

	if _, err := r.Classify(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10))); !errors.Is(err, ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}
