package presence

import (
	"errors"
	"image"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"goodzwork-checkin/models"
)

type stubDetector struct {
	boxes []models.FaceBox
	err   error
	panic bool
}

func (d stubDetector) Detect(image.Image) ([]models.FaceBox, error) {
	if d.panic {
		panic("native crash")
	}
	return d.boxes, d.err
}

type stubReader struct {
	frame image.Image
	err   error
}

func (r stubReader) Read() (image.Image, error) { return r.frame, r.err }

func faceConfig() models.FaceRecognitionConfig {
	return models.FaceRecognitionConfig{MinFaceSize: 80, CenterTolerance: 100}
}

// centered returns a square box of the given size centered on a 640x480 frame
// and shifted by dx.
func centered(size, dx int) models.FaceBox {
	return models.FaceBox{X: 320 - size/2 + dx, Y: 240 - size/2, Width: size, Height: size, Confidence: 0.9}
}

func TestSampler(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))

	tests := []struct {
		name     string
		detector stubDetector
		frame    image.Image
		want     bool
	}{
		{name: "no faces", detector: stubDetector{}, frame: frame, want: false},
		{name: "centered large face", detector: stubDetector{boxes: []models.FaceBox{centered(120, 0)}}, frame: frame, want: true},
		{name: "face exactly min size", detector: stubDetector{boxes: []models.FaceBox{centered(80, 0)}}, frame: frame, want: true},
		{name: "face too small", detector: stubDetector{boxes: []models.FaceBox{centered(60, 0)}}, frame: frame, want: false},
		{name: "face at tolerance edge", detector: stubDetector{boxes: []models.FaceBox{centered(120, 100)}}, frame: frame, want: true},
		{name: "face off center", detector: stubDetector{boxes: []models.FaceBox{centered(120, 150)}}, frame: frame, want: false},
		{name: "only first face counts", detector: stubDetector{boxes: []models.FaceBox{centered(120, 200), centered(120, 0)}}, frame: frame, want: false},
		{name: "detector error", detector: stubDetector{err: errors.New("bad blob")}, frame: frame, want: false},
		{name: "detector panic", detector: stubDetector{panic: true}, frame: frame, want: false},
		{name: "nil frame", detector: stubDetector{boxes: []models.FaceBox{centered(120, 0)}}, frame: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			s := NewSampler(tt.detector, faceConfig(), logger)
			assert.Equal(t, tt.want, s.Sample(tt.frame))
		})
	}
}

func TestSamplerUsesFrameOrigin(t *testing.T) {
	logger, _ := test.NewNullLogger()
	frame := image.NewRGBA(image.Rect(100, 100, 740, 580))
	box := models.FaceBox{X: 360, Y: 280, Width: 120, Height: 120}

	s := NewSampler(stubDetector{boxes: []models.FaceBox{box}}, faceConfig(), logger)
	assert.True(t, s.Sample(frame))
}

func TestProbeTreatsReadErrorAsAbsent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSampler(stubDetector{boxes: []models.FaceBox{centered(120, 0)}}, faceConfig(), logger)

	assert.False(t, s.Probe(stubReader{err: errors.New("no frame yet")}).Present())
	assert.True(t, s.Probe(stubReader{frame: image.NewRGBA(image.Rect(0, 0, 640, 480))}).Present())
}
