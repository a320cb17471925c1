// Package modelcache resolves detector model references to local files,
// downloading remote ones once into a cache directory.
package modelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

type Cache struct {
	dir    string
	client *http.Client
	// progress receives a download bar; nil disables it
	progress io.Writer
	log      logrus.FieldLogger
}

func New(dir string, client *http.Client, progress io.Writer, log logrus.FieldLogger) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	return &Cache{dir: dir, client: client, progress: progress, log: log}
}

func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Resolve returns a local path for ref. Local paths must exist; URLs are
// downloaded unless already cached.
func (c *Cache) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty model reference")
	}

	if !IsRemote(ref) {
		if _, err := os.Stat(ref); err != nil {
			return "", fmt.Errorf("model file %s: %w", ref, err)
		}
		return ref, nil
	}

	dest, err := c.pathFor(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err == nil {
		c.log.Debugf("📦 Using cached model %s", dest)
		return dest, nil
	}

	if err := c.download(ctx, ref, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// pathFor keeps the URL's file name (OpenCV picks the importer by extension)
// and prefixes a short hash so two URLs with the same name do not collide.
func (c *Cache) pathFor(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid model url %q: %w", ref, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "model"
	}
	sum := sha256.Sum256([]byte(ref))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:4])+"-"+name), nil
}

func (c *Cache) download(ctx context.Context, ref, dest string) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create model cache: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.log.Infof("⬇️  Downloading model %s", ref)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", ref, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if c.progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(c.progress),
			progressbar.OptionSetDescription(path.Base(dest)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		w = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to store model: %w", err)
	}

	c.log.Infof("✅ Model cached at %s", dest)
	return nil
}
