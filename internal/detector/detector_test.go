package detector

import (
	"context"
	"errors"
	"image"
	"os"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodzwork-checkin/models"
)

type fakeResolver struct {
	paths map[string]string
	calls []string
}

func (r *fakeResolver) Resolve(_ context.Context, ref string) (string, error) {
	r.calls = append(r.calls, ref)
	if p, ok := r.paths[ref]; ok {
		return p, nil
	}
	return "", errors.New("not found")
}

func TestLoadWithoutSources(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := Load(context.Background(), models.FaceRecognitionConfig{}, &fakeResolver{}, logger)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestLoadTriesEverySourceInOrder(t *testing.T) {
	logger, hook := test.NewNullLogger()
	resolver := &fakeResolver{paths: map[string]string{"weird.bin": "/tmp/weird.bin"}}

	cfg := models.FaceRecognitionConfig{
		InputSize:      320,
		ScoreThreshold: 0.5,
		ModelSources: []models.ModelSource{
			{Kind: KindDNN, Model: "https://models.example/face.onnx"},
			{Kind: "yolo", Model: "weird.bin"},
			{Kind: KindCascade, Model: "haarcascade_frontalface_default.xml"},
		},
	}

	_, err := Load(context.Background(), cfg, resolver, logger)
	require.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorContains(t, err, `unknown model kind "yolo"`)
	assert.Equal(t, []string{
		"https://models.example/face.onnx",
		"weird.bin",
		"haarcascade_frontalface_default.xml",
	}, resolver.calls)
	assert.Len(t, hook.AllEntries(), 3)
}

func TestLoadStopsOnCancelledContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := models.FaceRecognitionConfig{ModelSources: []models.ModelSource{{Kind: KindCascade, Model: "x.xml"}}}
	_, err := Load(ctx, cfg, &fakeResolver{}, logger)
	assert.ErrorIs(t, err, context.Canceled)
}

// Needs a real model on disk, e.g.
// FACE_CASCADE=/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml
func TestCascadeOnBlankFrame(t *testing.T) {
	path := os.Getenv("FACE_CASCADE")
	if path == "" {
		t.Skip("FACE_CASCADE not set")
	}

	logger, _ := test.NewNullLogger()
	cfg := models.FaceRecognitionConfig{
		InputSize:    320,
		ModelSources: []models.ModelSource{{Kind: KindCascade, Model: path}},
	}
	fd, err := Load(context.Background(), cfg, &fakeResolver{paths: map[string]string{path: path}}, logger)
	require.NoError(t, err)
	defer fd.Close()

	boxes, err := fd.Detect(image.NewRGBA(image.Rect(0, 0, 640, 480)))
	require.NoError(t, err)
	assert.Empty(t, boxes)

	fd.Close()
	_, err = fd.Detect(image.NewRGBA(image.Rect(0, 0, 64, 64)))
	assert.Error(t, err)
}
