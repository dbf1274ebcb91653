// Package artifacts stores failure screenshots.
package artifacts

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Store writes screenshots under a directory, downscaling anything wider
// than maxWidth.
type Store struct {
	dir      string
	maxWidth int
}

// New creates a Store. maxWidth <= 0 keeps the original size.
func New(dir string, maxWidth int) *Store {
	return &Store{dir: dir, maxWidth: maxWidth}
}

// SaveScreenshot decodes a captured image and writes it as <runID>.png.
// It returns the written path.
func (s *Store) SaveScreenshot(runID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty screenshot")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}
	if s.maxWidth > 0 && img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	path := filepath.Join(s.dir, runID+".png")
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save screenshot: %w", err)
	}
	slog.Debug("screenshot saved", "path", path, "width", img.Bounds().Dx())
	return path, nil
}
