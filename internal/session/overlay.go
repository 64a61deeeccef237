package session

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	overlayGreen = color.RGBA{G: 255, A: 255}
	overlayRed   = color.RGBA{R: 255, A: 255}
	overlayShade = color.RGBA{A: 160}
)

const (
	overlaySummaryRunes = 200
	cornerLength        = 20
)

// Overlay writes the latest camera frame, annotated with the current
// detection, to a JPEG file.
type Overlay struct {
	path string

	mu sync.Mutex
}

func NewOverlay(path string) *Overlay {
	return &Overlay{path: path}
}

func (o *Overlay) Render(_ context.Context, v View) error {
	if v.Frame == nil || v.Frame.Image == nil {
		return nil
	}

	img := Annotate(v.Frame.Image, v)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return err
	}
	tmp := o.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		f.Close()
		return fmt.Errorf("encode overlay: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, o.path)
}

// Annotate draws the detection box, verdict and advice summary over a copy
// of src.
func Annotate(src image.Image, v View) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	if v.Detection == nil {
		return dst
	}

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	side := min(w, h) / 2
	x0, y0 := (w-side)/2, (h-side)/2
	box := image.Rect(x0, y0, x0+side, y0+side)

	c := overlayRed
	label := "DISEASE DETECTED"
	if v.Detection.IsHealthy {
		c = overlayGreen
		label = "HEALTHY"
	}

	strokeRect(dst, box, 2, c)
	drawCorners(dst, box, cornerLength, 4, c)
	drawText(dst, box.Min.X, box.Min.Y-6, label, c)

	lines := []string{fmt.Sprintf("%s: %s", v.Detection.Crop.Title(), v.Detection.DisplayName())}
	if v.Advice != nil {
		lines = append(lines, wrap(v.Advice.Summary(overlaySummaryRunes), max((w-20)/7, 10))...)
	}
	drawPanel(dst, lines)

	return dst
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Over)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, t int, c color.Color) {
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), c)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), c)
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), c)
	fill(dst, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func drawCorners(dst *image.RGBA, r image.Rectangle, l, t int, c color.Color) {
	for _, p := range []image.Point{r.Min, {r.Max.X, r.Min.Y}, {r.Min.X, r.Max.Y}, r.Max} {
		dx, dy := 1, 1
		if p.X == r.Max.X {
			dx = -1
		}
		if p.Y == r.Max.Y {
			dy = -1
		}
		fill(dst, image.Rect(p.X, p.Y, p.X+dx*l, p.Y+dy*t).Canon(), c)
		fill(dst, image.Rect(p.X, p.Y, p.X+dx*t, p.Y+dy*l).Canon(), c)
	}
}

func drawText(dst *image.RGBA, x, y int, s string, c color.Color) {
	if y < 13 {
		y = 13
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawPanel(dst *image.RGBA, lines []string) {
	const lineHeight = 15
	b := dst.Bounds()
	top := b.Max.Y - lineHeight*len(lines) - 8
	fill(dst, image.Rect(0, top, b.Max.X, b.Max.Y), overlayShade)
	for i, line := range lines {
		drawText(dst, 10, top+lineHeight*(i+1), line, color.White)
	}
}

func wrap(s string, width int) []string {
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(s) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
