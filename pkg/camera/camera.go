// Package camera provides frame sources for the detection loop.
package camera

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"time"

	"MinoriAI/internal/entity"
)

var (
	// ErrFrameCapture is a transient read failure; the caller may keep
	// reading.
	ErrFrameCapture = errors.New("frame capture failed")
	// ErrCameraLost means the source cannot produce frames any more.
	ErrCameraLost = errors.New("camera lost")
)

// Source yields frames until it returns io.EOF or ErrCameraLost.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (*entity.Frame, error)
	Close() error
}

type sequencer struct {
	seq int64
}

func (s *sequencer) frame(img image.Image) *entity.Frame {
	f := &entity.Frame{Seq: s.seq, Image: img, CapturedAt: time.Now()}
	s.seq++
	return f
}

// Mirror flips every frame of src horizontally, as a selfie preview does.
func Mirror(src Source) Source {
	return &mirror{src: src}
}

type mirror struct {
	src Source
}

func (m *mirror) Open(ctx context.Context) error {
	return m.src.Open(ctx)
}

func (m *mirror) Read(ctx context.Context) (*entity.Frame, error) {
	f, err := m.src.Read(ctx)
	if err != nil || f == nil || f.Image == nil {
		return f, err
	}
	f.Image = FlipHorizontal(f.Image)
	return f, nil
}

func (m *mirror) Close() error {
	return m.src.Close()
}

func FlipHorizontal(img image.Image) image.Image {
	b := img.Bounds()
	src := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	dst := image.NewRGBA(src.Bounds())
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(drow[(w-1-x)*4:(w-x)*4], srow[x*4:(x+1)*4])
		}
	}
	return dst
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
