package images

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/models"
)

// subject draws a white 400x200 canvas with a dark square centred at (320, 100)
func subject() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 400; x++ {
			c := color.RGBA{R: 255, G: 255, B: 255, A: 255}
			if x >= 300 && x < 340 && y >= 80 && y < 120 {
				c = color.RGBA{A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func writeFixture(t *testing.T, name string, encode func(f *os.File) error) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, encode(f))
	require.NoError(t, f.Close())
	return path
}

func decodeSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	return cfg.Width, cfg.Height
}

func TestSelectWindow(t *testing.T) {
	img := subject()

	center := selectWindow(img, 100, 100, models.ROICenter)
	assert.Equal(t, image.Rect(100, 0, 300, 200), center)

	prominent := selectWindow(img, 100, 100, models.ROIProminent)
	assert.Equal(t, image.Rect(200, 0, 400, 200), prominent, "clamped to the right edge")

	thirds := selectWindow(img, 100, 100, models.ROIRuleOfThirds)
	assert.InDelta(t, 186, thirds.Min.X, 3, "subject sits on the right thirds line")
	assert.Equal(t, 200, thirds.Dx())
	assert.Equal(t, 200, thirds.Dy())
}

func TestEnergyCentroid(t *testing.T) {
	cx, cy := energyCentroid(subject())
	assert.InDelta(t, 320, cx, 2)
	assert.InDelta(t, 100, cy, 2)

	flat := image.NewGray(image.Rect(0, 0, 50, 30))
	cx, cy = energyCentroid(flat)
	assert.Equal(t, 25.0, cx)
	assert.Equal(t, 15.0, cy)
}

func TestService_ProcessCrop(t *testing.T) {
	src := writeFixture(t, "photo.png", func(f *os.File) error { return png.Encode(f, subject()) })
	service := NewService(arbor.NewLogger())

	out, err := service.Process(t.Context(), src, t.TempDir(), models.ImageConfig{
		Slot:   "hero/photo",
		ROI:    models.ROIProminent,
		Width:  120,
		Height: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, "hero_photo.png", filepath.Base(out))

	w, h := decodeSize(t, out)
	assert.Equal(t, 120, w)
	assert.Equal(t, 80, h)
}

func TestService_ProcessFit(t *testing.T) {
	src := writeFixture(t, "photo.jpg", func(f *os.File) error { return jpeg.Encode(f, subject(), nil) })
	service := NewService(arbor.NewLogger())

	out, err := service.Process(t.Context(), src, t.TempDir(), models.ImageConfig{
		Slot:   "photo",
		Crop:   models.CropFit,
		Width:  100,
		Height: 100,
	})
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
}

func TestService_ProcessDefaults(t *testing.T) {
	src := writeFixture(t, "photo.png", func(f *os.File) error { return png.Encode(f, subject()) })
	service := NewService(arbor.NewLogger())

	out, err := service.Process(t.Context(), src, t.TempDir(), models.ImageConfig{Slot: "photo"})
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, models.DefaultImageWidth, w)
	assert.Equal(t, models.DefaultImageHeight, h)
}

func TestService_ProcessRejectsNonImages(t *testing.T) {
	src := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(src, []byte("plain text"), 0644))

	_, err := NewService(arbor.NewLogger()).Process(t.Context(), src, t.TempDir(), models.ImageConfig{Slot: "photo"})
	assert.Error(t, err)
}
