package artwork

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // GIF decoder
	"image/jpeg"
	_ "image/png" // PNG decoder
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

// DefaultUploadSize is the longest edge of covers sent to upload services.
const DefaultUploadSize = 512

// Image is encoded image data ready for upload.
type Image struct {
	Data     []byte
	MimeType string
}

// Thumbnailer shrinks large covers before upload.
type Thumbnailer struct {
	maxSize int
}

// NewThumbnailer creates a thumbnailer for the given longest edge.
func NewThumbnailer(maxSize int) *Thumbnailer {
	if maxSize <= 0 {
		maxSize = DefaultUploadSize
	}
	return &Thumbnailer{maxSize: maxSize}
}

// Prepare reads the cover at path. Images within the size limit are returned
// as they are; larger ones are scaled down and re-encoded as JPEG.
func (g *Thumbnailer) Prepare(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read cover: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode cover: %w", err)
	}
	mime := DetectMimeType(data)
	if cfg.Width <= g.maxSize && cfg.Height <= g.maxSize && mime != "image/webp" {
		return Image{Data: data, MimeType: mime}, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode cover: %w", err)
	}

	log.Debug().
		Str("source", path).
		Str("format", format).
		Int("size", g.maxSize).
		Msg("Downscaling cover")

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, g.resize(img), &jpeg.Options{Quality: 85}); err != nil {
		return Image{}, fmt.Errorf("failed to encode cover: %w", err)
	}
	return Image{Data: buf.Bytes(), MimeType: "image/jpeg"}, nil
}

// resize scales an image to fit within maxSize while maintaining aspect
// ratio. Smaller images are never enlarged.
func (g *Thumbnailer) resize(src image.Image) image.Image {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	maxSize := g.maxSize

	newW, newH := srcW, srcH
	if srcW > maxSize || srcH > maxSize {
		if srcW > srcH {
			newW = maxSize
			newH = int(float64(srcH) * float64(maxSize) / float64(srcW))
		} else {
			newH = maxSize
			newW = int(float64(srcW) * float64(maxSize) / float64(srcH))
		}
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))

	// Scale using CatmullRom (high quality)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	return dst
}
