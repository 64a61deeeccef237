package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"MinoriAI/internal/entity"
	"MinoriAI/pkg/utils"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".bmp": true}

// Directory replays the images in a directory in name order, one per
// Interval. With Loop set it starts over instead of ending.
type Directory struct {
	Dir      string
	Loop     bool
	Interval time.Duration

	files []string
	next  int
	seq   sequencer
}

func NewDirectory(dir string, loop bool, interval time.Duration) *Directory {
	return &Directory{Dir: dir, Loop: loop, Interval: interval}
}

func (d *Directory) Open(_ context.Context) error {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCameraLost, err)
	}

	d.files = d.files[:0]
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		d.files = append(d.files, filepath.Join(d.Dir, e.Name()))
	}
	sort.Strings(d.files)

	if len(d.files) == 0 {
		return fmt.Errorf("%w: no images in %s", ErrCameraLost, d.Dir)
	}
	d.next = 0
	return nil
}

func (d *Directory) Read(ctx context.Context) (*entity.Frame, error) {
	if len(d.files) == 0 {
		return nil, fmt.Errorf("%w: source not open", ErrCameraLost)
	}
	if d.next >= len(d.files) {
		if !d.Loop {
			return nil, io.EOF
		}
		d.next = 0
	}
	if d.seq.seq > 0 {
		if err := wait(ctx, d.Interval); err != nil {
			return nil, err
		}
	}

	path := d.files[d.next]
	d.next++

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s vanished", ErrFrameCapture, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFrameCapture, err)
	}

	img, err := utils.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFrameCapture, filepath.Base(path), err)
	}
	return d.seq.frame(img), nil
}

func (d *Directory) Close() error {
	d.files = nil
	return nil
}
