package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"MinoriAI/internal/entity"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

type RemoteConfig struct {
	Crop         entity.Crop
	URL          string
	Labels       Vocabulary
	InputSize    int
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type describeRequest struct {
	Type string `json:"type"`
}

type describeResponse struct {
	Outputs int    `json:"outputs"`
	Input   []int  `json:"input"`
	Error   string `json:"error,omitempty"`
}

type inferResponse struct {
	Probabilities []float32 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

// Remote runs inference on a model-serving sidecar over a WebSocket. Each
// request is a binary NHWC tensor; each reply a JSON probability vector.
type Remote struct {
	cfg    RemoteConfig
	width  int
	height int
	log    *logrus.Logger

	// mu guards conn; callMu serialises request/response pairs.
	mu     sync.Mutex
	callMu sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewRemote connects to the sidecar and checks that the model's output size
// matches the vocabulary. Any failure is ErrModelUnavailable.
func NewRemote(ctx context.Context, cfg RemoteConfig, log *logrus.Logger) (*Remote, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: no model URL configured for %s", ErrModelUnavailable, cfg.Crop)
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("%w: no labels configured for %s", ErrModelUnavailable, cfg.Crop)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}

	r := &Remote{
		cfg:    cfg,
		width:  cfg.InputSize,
		height: cfg.InputSize,
		log:    log,
	}

	if err := r.connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, cfg.Crop, err)
	}
	if err := r.describe(); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, cfg.Crop, err)
	}
	return r, nil
}

func (r *Remote) Crop() entity.Crop {
	return r.cfg.Crop
}

func (r *Remote) Labels() []string {
	return r.cfg.Labels
}

func (r *Remote) connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("classifier closed")
	}
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}

	r.log.WithFields(logrus.Fields{
		"crop": r.cfg.Crop,
		"url":  r.cfg.URL,
	}).Info("Connecting to model service")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, r.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", r.cfg.URL, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(r.cfg.WriteTimeout))
		if err != nil {
			r.log.WithError(err).Warn("Error sending pong to model service")
		}
		return nil
	})

	r.conn = conn
	go r.keepAlive(conn)

	return nil
}

func (r *Remote) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if r.conn != conn {
			r.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(r.cfg.WriteTimeout))
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"crop":  r.cfg.Crop,
				"error": err.Error(),
			}).Warn("Ping failed, marking model connection as dead")
			r.conn = nil
			conn.Close()
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
	}
}

func (r *Remote) getConnection(ctx context.Context) (*websocket.Conn, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		return conn, nil
	}
	if err := r.connect(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil, errors.New("not connected to model service")
	}
	return r.conn, nil
}

func (r *Remote) dropConnection(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == conn {
		r.conn = nil
	}
	conn.Close()
}

// roundTrip writes one message and reads the reply on the current
// connection, dropping the connection on any transport error.
func (r *Remote) roundTrip(ctx context.Context, messageType int, payload []byte) ([]byte, error) {
	r.callMu.Lock()
	defer r.callMu.Unlock()

	conn, err := r.getConnection(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(r.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if err := conn.WriteMessage(messageType, payload); err != nil {
		r.dropConnection(conn)
		return nil, fmt.Errorf("error sending to model service: %w", err)
	}

	conn.SetReadDeadline(deadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		r.dropConnection(conn)
		return nil, fmt.Errorf("error reading from model service: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	return message, nil
}

func (r *Remote) describe() error {
	payload, _ := jsoniter.Marshal(describeRequest{Type: "describe"})
	message, err := r.roundTrip(context.Background(), websocket.TextMessage, payload)
	if err != nil {
		return err
	}

	var desc describeResponse
	if err := jsoniter.Unmarshal(message, &desc); err != nil {
		return fmt.Errorf("decode model description: %w", err)
	}
	if desc.Error != "" {
		return errors.New(desc.Error)
	}
	if desc.Outputs != len(r.cfg.Labels) {
		return fmt.Errorf("model has %d outputs but %d labels are configured", desc.Outputs, len(r.cfg.Labels))
	}
	if len(desc.Input) >= 2 && desc.Input[0] > 0 && desc.Input[1] > 0 {
		r.height, r.width = desc.Input[0], desc.Input[1]
	}

	r.log.WithFields(logrus.Fields{
		"crop":    r.cfg.Crop,
		"outputs": desc.Outputs,
		"width":   r.width,
		"height":  r.height,
	}).Info("Model service ready")
	return nil
}

func (r *Remote) Classify(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: empty image", ErrClassification)
	}

	tensor := Preprocess(img, r.width, r.height)
	message, err := r.roundTrip(ctx, websocket.BinaryMessage, EncodeTensor(tensor))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrClassification, err)
	}

	var res inferResponse
	if err := jsoniter.Unmarshal(message, &res); err != nil {
		return "", fmt.Errorf("%w: decode model response: %w", ErrClassification, err)
	}
	if res.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrClassification, res.Error)
	}
	if len(res.Probabilities) != len(r.cfg.Labels) {
		return "", fmt.Errorf("%w: got %d probabilities for %d labels", ErrClassification, len(res.Probabilities), len(r.cfg.Labels))
	}

	return r.cfg.Labels[Argmax(res.Probabilities)], nil
}

func (r *Remote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}
