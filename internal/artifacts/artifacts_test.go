package artifacts

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSaveScreenshot_Downscales(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	s := New(dir, 100)

	path, err := s.SaveScreenshot("run-1", pngOf(t, 400, 200))
	if err != nil {
		t.Fatalf("SaveScreenshot: %v", err)
	}
	if path != filepath.Join(dir, "run-1.png") {
		t.Errorf("path = %q", path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestSaveScreenshot_KeepsSmallImages(t *testing.T) {
	s := New(t.TempDir(), 1280)
	path, err := s.SaveScreenshot("run-2", pngOf(t, 64, 32))
	if err != nil {
		t.Fatal(err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("width = %d, want 64", img.Bounds().Dx())
	}
}

func TestSaveScreenshot_Invalid(t *testing.T) {
	s := New(t.TempDir(), 0)
	if _, err := s.SaveScreenshot("x", nil); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := s.SaveScreenshot("x", []byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}
