package images

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

// Service implements interfaces.ImageService
type Service struct {
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ImageService = (*Service)(nil)

// NewService creates a new image service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// Process decodes src, crops or fits it to the configured size and writes a
// PNG named after the slot into destDir
func (s *Service) Process(ctx context.Context, src string, destDir string, config models.ImageConfig) (string, error) {
	config = config.WithDefaults()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	img, format, err := decode(src)
	if err != nil {
		return "", err
	}

	var out image.Image
	switch config.Crop {
	case models.CropFit:
		out = fit(img, config.Width, config.Height)
	default:
		window := selectWindow(img, config.Width, config.Height, config.ROI)
		out = scale(img, window, config.Width, config.Height)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	path := filepath.Join(destDir, fileName(config.Slot)+".png")
	if err := writePNG(path, out); err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("src", src).
		Str("format", format).
		Str("slot", config.Slot).
		Str("roi", string(config.ROI)).
		Str("crop", string(config.Crop)).
		Int("width", out.Bounds().Dx()).
		Int("height", out.Bounds().Dy()).
		Msg("Image processed")
	return path, nil
}

func decode(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("decode %s: empty image", filepath.Base(path))
	}
	return img, format, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// scale resamples the window of src to exactly width x height
func scale(src image.Image, window image.Rectangle, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, window, draw.Over, nil)
	return dst
}

// fit scales the whole image to fit inside width x height keeping its aspect ratio
func fit(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	ratio := min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	w := max(1, int(float64(b.Dx())*ratio+0.5))
	h := max(1, int(float64(b.Dy())*ratio+0.5))
	return scale(src, b, w, h)
}

func fileName(slot string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, slot)
	if name == "" {
		return "image"
	}
	return name
}
