package artwork_test

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/edumarques81/beebridge/internal/domain/artwork"
)

func createTestImage(path string, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with some color
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, image.White)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if filepath.Ext(path) == ".png" {
		return png.Encode(f, img)
	}
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

func TestThumbnailer_DownscalesLargeCover(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a test source image (1600x1200)
	sourcePath := filepath.Join(tmpDir, "source.png")
	if err := createTestImage(sourcePath, 1600, 1200); err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}

	img, err := artwork.NewThumbnailer(512).Prepare(sourcePath)
	if err != nil {
		t.Fatalf("Failed to prepare cover: %v", err)
	}
	if img.MimeType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", img.MimeType)
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() != 512 {
		t.Errorf("Expected width 512, got %d", bounds.Dx())
	}
	// 1200/1600 * 512 = 384
	if bounds.Dy() != 384 {
		t.Errorf("Expected height 384, got %d", bounds.Dy())
	}
}

func TestThumbnailer_PortraitCover(t *testing.T) {
	tmpDir := t.TempDir()
	sourcePath := filepath.Join(tmpDir, "tall.jpg")
	if err := createTestImage(sourcePath, 600, 1200); err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}

	img, err := artwork.NewThumbnailer(300).Prepare(sourcePath)
	if err != nil {
		t.Fatalf("Failed to prepare cover: %v", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if cfg.Width != 150 || cfg.Height != 300 {
		t.Errorf("Expected 150x300, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestThumbnailer_SmallCoverUnchanged(t *testing.T) {
	tmpDir := t.TempDir()
	sourcePath := filepath.Join(tmpDir, "small.png")
	if err := createTestImage(sourcePath, 200, 200); err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	original, err := os.ReadFile(sourcePath)
	if err != nil {
		t.Fatal(err)
	}

	img, err := artwork.NewThumbnailer(0).Prepare(sourcePath)
	if err != nil {
		t.Fatalf("Failed to prepare cover: %v", err)
	}
	if img.MimeType != "image/png" {
		t.Errorf("Expected image/png, got %s", img.MimeType)
	}
	if !bytes.Equal(img.Data, original) {
		t.Error("Expected small cover to be passed through untouched")
	}
}

func TestThumbnailer_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	bogus := filepath.Join(tmpDir, "bogus.jpg")
	if err := os.WriteFile(bogus, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	thumbs := artwork.NewThumbnailer(512)
	if _, err := thumbs.Prepare(filepath.Join(tmpDir, "missing.jpg")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := thumbs.Prepare(bogus); err == nil {
		t.Error("Expected error for undecodable file")
	}
}
