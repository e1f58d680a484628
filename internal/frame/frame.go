package frame

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrCameraAccessDenied is reported when the capture device cannot be opened.
	ErrCameraAccessDenied = errors.New("camera access denied")
	// ErrNoFrame means no frame has been captured yet.
	ErrNoFrame = errors.New("no frame available")
	// ErrInvalidFrame means the payload is not a decodable image.
	ErrInvalidFrame = errors.New("invalid frame")
)

// Frame is a single still image from a camera or an upload.
type Frame struct {
	Data       []byte
	MIME       string
	CapturedAt time.Time
}

// Source supplies frames on demand.
type Source interface {
	Frame(ctx context.Context) (Frame, error)
}

// ParseDataURI decodes "data:image/jpeg;base64,..." or raw base64.
func ParseDataURI(s string) (Frame, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Frame{}, fmt.Errorf("%w: empty", ErrInvalidFrame)
	}
	mime := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(s, ",")
		if !ok {
			return Frame{}, fmt.Errorf("%w: malformed data uri", ErrInvalidFrame)
		}
		header = strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(header, ";base64") {
			return Frame{}, fmt.Errorf("%w: data uri is not base64", ErrInvalidFrame)
		}
		if m := strings.TrimSuffix(header, ";base64"); m != "" {
			mime = m
		}
		payload = data
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return Frame{Data: raw, MIME: mime, CapturedAt: time.Now()}, nil
}

// DataURI returns the frame encoded as a base64 data URI.
func (f Frame) DataURI() string {
	mime := f.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Normalize decodes the frame, scales it to fit within maxDim and re-encodes it as JPEG.
// A maxDim <= 0 keeps the original size. A JPEG that already fits is returned
// unchanged so repeated normalization does not degrade it.
func Normalize(f Frame, maxDim int) (Frame, error) {
	img, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	fits := maxDim <= 0 || (width <= maxDim && height <= maxDim)
	if fits && format == "jpeg" {
		return Frame{Data: f.Data, MIME: "image/jpeg", CapturedAt: f.CapturedAt}, nil
	}
	out := img
	if !fits {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxDim
			newHeight = max(1, int(float64(height)*float64(maxDim)/float64(width)))
		} else {
			newHeight = maxDim
			newWidth = max(1, int(float64(width)*float64(maxDim)/float64(height)))
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 90}); err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	return Frame{Data: buf.Bytes(), MIME: "image/jpeg", CapturedAt: f.CapturedAt}, nil
}

// Buffer holds the most recent frame pushed by the capture device.
type Buffer struct {
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	latest   *Frame
	received time.Time
	err      error
}

// NewBuffer returns an empty buffer. Frames older than maxAge are reported as
// ErrNoFrame; a maxAge <= 0 keeps the latest frame until it is replaced.
func NewBuffer(maxAge time.Duration) *Buffer {
	return &Buffer{maxAge: maxAge, now: time.Now}
}

// Put stores f as the latest frame and clears any capture error.
func (b *Buffer) Put(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = &f
	b.received = b.now()
	b.err = nil
}

// Fail records a capture failure; subsequent reads return err until the next Put.
func (b *Buffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = nil
	b.err = err
}

// Clear drops the latest frame and any capture error.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = nil
	b.err = nil
}

// Frame returns the latest frame if it is still fresh.
func (b *Buffer) Frame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return Frame{}, b.err
	}
	if b.latest == nil {
		return Frame{}, ErrNoFrame
	}
	if b.maxAge > 0 && b.now().Sub(b.received) > b.maxAge {
		return Frame{}, fmt.Errorf("%w: last frame is %s old", ErrNoFrame, b.now().Sub(b.received).Round(time.Millisecond))
	}
	return *b.latest, nil
}
