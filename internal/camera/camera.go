package camera

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"goodzwork-checkin/models"
)

var (
	ErrNoFrame = errors.New("no frame available yet")
	ErrClosed  = errors.New("camera closed")
)

// Source yields the most recent frame of a live feed.
type Source interface {
	Read() (image.Image, error)
	Close() error
}

// ============================================================
// BUFFER POOL
// ============================================================

const (
	maxPooledBufferSize = 10 * 1024 * 1024 // 10MB
	initialBufferCap    = 512 * 1024       // 512KB
)

type bufferPool struct {
	pool sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := new(bytes.Buffer)
				buf.Grow(initialBufferCap)
				return buf
			},
		},
	}
}

func (p *bufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() < maxPooledBufferSize {
		p.pool.Put(buf)
	}
}

// ============================================================
// STILL ENCODER
// ============================================================

// Encoder turns a frame into the JPEG data URL the backend expects as
// face_image. The full frame is submitted, only scaled down.
type Encoder struct {
	maxSide int
	quality int
	pool    *bufferPool
	log     logrus.FieldLogger
}

func NewEncoder(maxSide, quality int, log logrus.FieldLogger) *Encoder {
	return &Encoder{
		maxSide: maxSide,
		quality: quality,
		pool:    newBufferPool(),
		log:     log,
	}
}

func (e *Encoder) Encode(img image.Image, at time.Time) (models.CaptureResult, error) {
	if img == nil {
		return models.CaptureResult{}, ErrNoFrame
	}

	img = e.scale(img)
	bounds := img.Bounds()

	buf := e.pool.Get()
	defer e.pool.Put(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return models.CaptureResult{}, fmt.Errorf("jpeg encode failed: %w", err)
	}

	e.log.Debugf("📦 Image size: %.1fKB (quality: %d)", float64(buf.Len())/1024.0, e.quality)

	return models.CaptureResult{
		Image:      "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: at,
	}, nil
}

func (e *Encoder) scale(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if e.maxSide <= 0 || longest <= e.maxSide {
		return img
	}

	ratio := float64(e.maxSide) / float64(longest)
	newW := max(1, int(float64(w)*ratio))
	newH := max(1, int(float64(h)*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// ============================================================
// SNAPSHOT
// ============================================================

// Snapshotter captures and encodes the current frame of a source.
type Snapshotter struct {
	Source  Source
	Encoder *Encoder
	Now     func() time.Time
}

func (s Snapshotter) Snapshot() (models.CaptureResult, error) {
	frame, err := s.Source.Read()
	if err != nil {
		return models.CaptureResult{}, fmt.Errorf("read frame: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Encoder.Encode(frame, now())
}

// Shared wraps a long-lived source, such as the WebRTC ingest, so that a
// session closing its camera leaves the source running.
func Shared(src Source) Source {
	return shared{src}
}

type shared struct {
	Source
}

func (shared) Close() error { return nil }
