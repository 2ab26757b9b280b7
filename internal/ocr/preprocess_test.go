package ocr

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// synthPage renders black horizontal bars on a white page, rotated by
// deg, which is close enough to skewed text lines for the estimator.
func synthPage(w, h int, deg float64) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w)/2, float64(h)/2
	for line := -3; line <= 3; line++ {
		ly := float64(line) * 14
		for t := -float64(w) * 0.35; t <= float64(w)*0.35; t += 0.5 {
			for th := 0.0; th < 4; th++ {
				x := cx + t*cos - (ly+th)*sin
				y := cy + t*sin + (ly+th)*cos
				if x >= 0 && x < float64(w) && y >= 0 && y < float64(h) {
					g.SetGray(int(x), int(y), color.Gray{Y: 0})
				}
			}
		}
	}
	return g
}

func TestOtsuThresholdSeparatesBimodal(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if x < 10 {
				g.SetGray(x, y, color.Gray{Y: 30})
			} else {
				g.SetGray(x, y, color.Gray{Y: 220})
			}
		}
	}
	th := otsuThreshold(g)
	assert.GreaterOrEqual(t, th, uint8(30))
	assert.Less(t, th, uint8(220))
}

func TestMedianFilterRemovesSaltNoise(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 15, 15))
	for y := 0; y < 15; y++ {
		for x := 0; x < 15; x++ {
			g.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	g.SetGray(7, 7, color.Gray{Y: 0}) // isolated speck

	out := medianFilter3(g)
	assert.Equal(t, uint8(255), out.GrayAt(7, 7).Y)
}

func TestBinarizeProducesTwoLevels(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 1))
	for i, v := range []uint8{0, 100, 150, 255} {
		g.SetGray(i, 0, color.Gray{Y: v})
	}
	out := binarize(g, 120)
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), out.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(2, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(3, 0).Y)
}

func TestCloseDropsPinholes(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			g.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	g.SetGray(6, 6, color.Gray{Y: 255}) // pinhole inside solid ink

	out := erodeFg(dilateFg(g))
	assert.Equal(t, uint8(0), out.GrayAt(6, 6).Y)
}

func TestEstimateSkewStraightPage(t *testing.T) {
	angle := EstimateSkew(synthPage(240, 160, 0))
	assert.InDelta(t, 0, angle, 1.5)
}

func TestEstimateSkewTiltedPage(t *testing.T) {
	angle := EstimateSkew(synthPage(240, 160, 6))
	assert.InDelta(t, 6, angle, 2.5)
}

func TestEstimateSkewEmptyPage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			g.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	assert.Equal(t, 0.0, EstimateSkew(g))
}

func TestPreprocessPageOutputIsBinary(t *testing.T) {
	out := PreprocessPage(synthPage(120, 80, 2))
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := out.GrayAt(x, y).Y
			if v != 0 && v != 255 {
				t.Fatalf("non-binary pixel %d at (%d,%d)", v, x, y)
			}
		}
	}
}
