package images

import (
	"image"
	"image/color"

	"github.com/ternarybob/slidegen/internal/models"
)

// energySamples bounds the sampling grid used for the energy centroid
const energySamples = 256

// selectWindow returns the largest window with the target aspect ratio,
// positioned according to roi and clamped to the image bounds
func selectWindow(img image.Image, width, height int, roi models.ROIType) image.Rectangle {
	b := img.Bounds()
	target := float64(width) / float64(height)

	w, h := b.Dx(), b.Dy()
	if float64(w)/float64(h) > target {
		w = max(1, int(float64(h)*target+0.5))
	} else {
		h = max(1, int(float64(w)/target+0.5))
	}

	// Window origin relative to the image, before clamping
	var x0, y0 float64
	switch roi {
	case models.ROIProminent:
		cx, cy := energyCentroid(img)
		x0 = cx - float64(w)/2
		y0 = cy - float64(h)/2
	case models.ROIRuleOfThirds:
		cx, cy := energyCentroid(img)
		x0 = cx - float64(w)*thirdFor(cx, b.Dx())
		y0 = cy - float64(h)*thirdFor(cy, b.Dy())
	default:
		x0 = float64(b.Dx()-w) / 2
		y0 = float64(b.Dy()-h) / 2
	}

	x := clamp(int(x0+0.5), 0, b.Dx()-w)
	y := clamp(int(y0+0.5), 0, b.Dy()-h)
	return image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+w, b.Min.Y+y+h)
}

// thirdFor picks the thirds line nearest to the point's position in the image
func thirdFor(pos float64, size int) float64 {
	if pos < float64(size)/2 {
		return 1.0 / 3.0
	}
	return 2.0 / 3.0
}

// energyCentroid returns the gradient-energy weighted centre of img relative
// to its bounds. Flat images return the geometric centre.
func energyCentroid(img image.Image) (float64, float64) {
	b := img.Bounds()
	step := max(1, max(b.Dx(), b.Dy())/energySamples)

	cols := (b.Dx() + step - 1) / step
	rows := (b.Dy() + step - 1) / step
	lum := make([]float64, cols*rows)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+i*step, b.Min.Y+j*step)).(color.Gray)
			lum[j*cols+i] = float64(c.Y)
		}
	}

	var total, sx, sy float64
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			v := lum[j*cols+i]
			var e float64
			if i+1 < cols {
				e += abs(lum[j*cols+i+1] - v)
			}
			if j+1 < rows {
				e += abs(lum[(j+1)*cols+i] - v)
			}
			total += e
			sx += e * float64(i*step)
			sy += e * float64(j*step)
		}
	}

	if total == 0 {
		return float64(b.Dx()) / 2, float64(b.Dy()) / 2
	}
	return sx / total, sy / total
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
