package camera

import (
	"context"
	"image"
	"io"
	"sync"

	"MinoriAI/internal/entity"
)

// Channel is a Source fed by another goroutine, such as a WebSocket reader.
// Push never blocks: when the reader is behind, the new frame is dropped.
type Channel struct {
	frames chan image.Image
	done   chan struct{}
	once   sync.Once
	seq    sequencer
}

func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 1
	}
	return &Channel{
		frames: make(chan image.Image, buffer),
		done:   make(chan struct{}),
	}
}

// Push offers a frame and reports whether it was accepted.
func (c *Channel) Push(img image.Image) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.frames <- img:
		return true
	default:
		return false
	}
}

func (c *Channel) Open(context.Context) error {
	return nil
}

// Read returns the next pushed frame, or io.EOF once the channel is closed.
func (c *Channel) Read(ctx context.Context) (*entity.Frame, error) {
	select {
	case img := <-c.frames:
		return c.seq.frame(img), nil
	case <-c.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Channel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
