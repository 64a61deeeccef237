package utils

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoImage      = errors.New("no image data")
	ErrInvalidImage = errors.New("invalid image data")
	ErrImageTooBig  = errors.New("file size exceeds limit")
)

const (
	DefaultMaxFileSize = 5 * 1024 * 1024
	// MaxPixels caps decoded frames at 40 megapixels.
	MaxPixels = 40_000_000
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ValidateImageFile(file *multipart.FileHeader) error
	DecodeImageFile(file *multipart.FileHeader) (image.Image, error)
	DecodeDataURL(frame string) (image.Image, error)
	DecodeImageBytes(data []byte) (image.Image, error)
}

type utils struct {
	maxFileSize int64
}

func New() IUtils {
	return &utils{
		maxFileSize: DefaultMaxFileSize,
	}
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (u *utils) ValidateImageFile(file *multipart.FileHeader) error {
	if file == nil {
		return fmt.Errorf("%w: no file uploaded", ErrNoImage)
	}

	if file.Size > u.maxFileSize {
		return ErrImageTooBig
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%w: uploaded file is not an image", ErrInvalidImage)
	}

	return nil
}

func (u *utils) DecodeImageFile(file *multipart.FileHeader) (image.Image, error) {
	if err := u.ValidateImageFile(file); err != nil {
		return nil, err
	}

	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, u.maxFileSize+1))
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

// DecodeDataURL accepts a browser data URL ("data:image/jpeg;base64,...")
// or bare base64 and decodes the image inside.
func (u *utils) DecodeDataURL(frame string) (image.Image, error) {
	data, err := DataURLBytes(frame)
	if err != nil {
		return nil, err
	}
	return u.DecodeImageBytes(data)
}

// DecodeImageBytes decodes raw image bytes, enforcing the upload size limit.
func (u *utils) DecodeImageBytes(data []byte) (image.Image, error) {
	if int64(len(data)) > u.maxFileSize {
		return nil, ErrImageTooBig
	}
	return DecodeImage(data)
}

func DataURLBytes(frame string) ([]byte, error) {
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return nil, ErrNoImage
	}
	if strings.HasPrefix(frame, "data:") {
		comma := strings.IndexByte(frame, ',')
		if comma < 0 || !strings.Contains(frame[:comma], ";base64") {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
		}
		frame = frame[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(frame, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64", ErrInvalidImage)
		}
	}
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	return data, nil
}

// DecodeImage decodes JPEG, PNG, WebP or BMP bytes. The header is read
// first so that images over MaxPixels are rejected before any pixel buffer
// is allocated.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooBig, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return img, nil
}
