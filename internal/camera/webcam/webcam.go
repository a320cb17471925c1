// Package webcam reads frames from a local capture device through OpenCV.
package webcam

import (
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"goodzwork-checkin/internal/camera"
	"goodzwork-checkin/models"
)

type Webcam struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	log     logrus.FieldLogger
}

var _ camera.Source = (*Webcam)(nil)

func Open(cfg models.CameraConfig, log logrus.FieldLogger) (*Webcam, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open camera %d: device not available", cfg.Device)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	log.Infof("📷 Camera %d opened (%.0fx%.0f)", cfg.Device,
		capture.Get(gocv.VideoCaptureFrameWidth), capture.Get(gocv.VideoCaptureFrameHeight))

	return &Webcam{
		capture: capture,
		frame:   gocv.NewMat(),
		log:     log,
	}, nil
}

func (w *Webcam) Read() (image.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture == nil {
		return nil, camera.ErrClosed
	}
	if ok := w.capture.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, camera.ErrNoFrame
	}

	img, err := w.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device. It is safe to call more than once.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture == nil {
		return nil
	}
	w.frame.Close()
	err := w.capture.Close()
	w.capture = nil
	w.log.Info("📷 Camera released")
	return err
}
