package presence

import (
	"image"

	"github.com/sirupsen/logrus"

	"goodzwork-checkin/models"
)

// Detector finds faces on a frame, best candidate first.
type Detector interface {
	Detect(frame image.Image) ([]models.FaceBox, error)
}

type FrameReader interface {
	Read() (image.Image, error)
}

// Sampler decides whether the current frame shows a usable face: detected,
// large enough and close to the frame center.
type Sampler struct {
	detector        Detector
	minFaceSize     int
	centerTolerance int
	log             logrus.FieldLogger
}

func NewSampler(detector Detector, cfg models.FaceRecognitionConfig, log logrus.FieldLogger) *Sampler {
	return &Sampler{
		detector:        detector,
		minFaceSize:     cfg.MinFaceSize,
		centerTolerance: cfg.CenterTolerance,
		log:             log,
	}
}

// Sample never panics and never returns an error; detector failures count as
// "no face".
func (s *Sampler) Sample(frame image.Image) (usable bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Debugf("⚠️  Detector panic: %v", r)
			usable = false
		}
	}()

	if frame == nil {
		return false
	}

	boxes, err := s.detector.Detect(frame)
	if err != nil {
		s.log.Debugf("⚠️  Detection failed: %v", err)
		return false
	}
	if len(boxes) == 0 {
		return false
	}

	box := boxes[0]
	if box.Width < s.minFaceSize || box.Height < s.minFaceSize {
		return false
	}

	bounds := frame.Bounds()
	frameCenter := image.Pt(bounds.Min.X+bounds.Dx()/2, bounds.Min.Y+bounds.Dy()/2)
	faceCenter := box.Center()

	if abs(faceCenter.X-frameCenter.X) > s.centerTolerance ||
		abs(faceCenter.Y-frameCenter.Y) > s.centerTolerance {
		return false
	}

	return true
}

// Probe binds the sampler to a frame source. Read errors count as "no face".
func (s *Sampler) Probe(src FrameReader) Probe {
	return ProbeFunc(func() bool {
		frame, err := src.Read()
		if err != nil {
			s.log.Debugf("⚠️  Frame read failed: %v", err)
			return false
		}
		return s.Sample(frame)
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
