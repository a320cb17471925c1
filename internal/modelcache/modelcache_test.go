package modelcache

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLocalPath(t *testing.T) {
	logger, _ := test.NewNullLogger()
	file := filepath.Join(t.TempDir(), "face.onnx")
	require.NoError(t, os.WriteFile(file, []byte("net"), 0644))

	c := New(t.TempDir(), nil, nil, logger)
	got, err := c.Resolve(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	_, err = c.Resolve(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = c.Resolve(context.Background(), "")
	assert.Error(t, err)
}

func TestResolveDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("caffe-weights"))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	var progress bytes.Buffer
	dir := t.TempDir()
	c := New(dir, srv.Client(), &progress, logger)

	ref := srv.URL + "/models/res10_300x300_ssd.caffemodel"
	got, err := c.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "-res10_300x300_ssd.caffemodel"))
	assert.Equal(t, dir, filepath.Dir(got))

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "caffe-weights", string(data))

	again, err := c.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveDownloadFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	c := New(dir, srv.Client(), nil, logger)

	_, err := c.Resolve(context.Background(), srv.URL+"/face.xml")
	assert.ErrorContains(t, err, "status 404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.onnx"))
	assert.True(t, IsRemote("http://example.com/a.onnx"))
	assert.False(t, IsRemote("/opt/models/a.onnx"))
	assert.False(t, IsRemote("models/haarcascade_frontalface_default.xml"))
}
