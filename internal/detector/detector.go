package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"goodzwork-checkin/internal/modelcache"
	"goodzwork-checkin/models"
)

// ============================================================
// FACE DETECTOR - ordered model sources, first one that loads wins
// ============================================================

var ErrModelUnavailable = errors.New("no face detection model could be loaded")

const (
	KindDNN     = models.ModelKindDNN
	KindCascade = models.ModelKindCascade
)

type backend interface {
	detect(mat gocv.Mat) []models.FaceBox
	Close() error
}

// Resolver turns a model reference into a local file.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

type FaceDetector struct {
	Source models.ModelSource
	Config models.FaceRecognitionConfig

	mu      sync.Mutex
	backend backend
	log     logrus.FieldLogger
}

var _ interface {
	Detect(image.Image) ([]models.FaceBox, error)
} = (*FaceDetector)(nil)

// Load tries each configured model source in order. Failures are logged and
// the next source is tried; if none loads the error wraps ErrModelUnavailable.
func Load(ctx context.Context, config models.FaceRecognitionConfig, resolver Resolver, log logrus.FieldLogger) (*FaceDetector, error) {
	if len(config.ModelSources) == 0 {
		return nil, fmt.Errorf("%w: no model sources configured", ErrModelUnavailable)
	}

	var errs []error
	for i, src := range config.ModelSources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b, err := open(ctx, src, config, resolver)
		if err != nil {
			log.Warnf("⚠️  Model source %d (%s %s) failed: %v", i+1, src.Kind, src.Model, err)
			errs = append(errs, fmt.Errorf("%s %s: %w", src.Kind, src.Model, err))
			continue
		}

		log.Info("✅ Face detector initialized")
		log.Infof("   Model: %s (%s)", src.Model, src.Kind)
		log.Infof("   Min face size: %dx%d", config.MinFaceSize, config.MinFaceSize)

		return &FaceDetector{
			Source:  src,
			Config:  config,
			backend: b,
			log:     log,
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, errors.Join(errs...))
}

func open(ctx context.Context, src models.ModelSource, config models.FaceRecognitionConfig, resolver Resolver) (backend, error) {
	model, err := resolver.Resolve(ctx, src.Model)
	if err != nil {
		return nil, err
	}

	switch src.Kind {
	case KindDNN:
		var cfgPath string
		if src.Config != "" {
			if cfgPath, err = resolver.Resolve(ctx, src.Config); err != nil {
				return nil, err
			}
		}
		return newDNN(model, cfgPath, config.InputSize, config.ScoreThreshold)

	case KindCascade:
		return newCascade(model, config.InputSize)

	default:
		return nil, fmt.Errorf("unknown model kind %q", src.Kind)
	}
}

// NewResolver returns the default resolver backed by the on-disk model cache.
func NewResolver(config models.FaceRecognitionConfig, log logrus.FieldLogger) Resolver {
	return modelcache.New(config.ModelCacheDir, nil, nil, log)
}

// Detect runs one detection pass. Boxes are in frame coordinates, highest
// confidence first.
func (fd *FaceDetector) Detect(img image.Image) ([]models.FaceBox, error) {
	if img == nil {
		return nil, fmt.Errorf("nil frame")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	fd.mu.Lock()
	if fd.backend == nil {
		fd.mu.Unlock()
		return nil, fmt.Errorf("detector closed")
	}
	boxes := fd.backend.detect(mat)
	fd.mu.Unlock()

	origin := img.Bounds().Min
	for i := range boxes {
		boxes[i].X += origin.X
		boxes[i].Y += origin.Y
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})
	return boxes, nil
}

// Close releases resources used by the detector
func (fd *FaceDetector) Close() {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.backend != nil {
		fd.backend.Close()
		fd.backend = nil
	}
}
