package ocr

import (
	"image"
	"image/color"
	"math"
	"sort"
)

// Skew handling bounds. Pages skewed less than SkewThresholdDeg are
// left alone so near-straight pages are not degraded by resampling;
// estimates beyond MaxSkewDeg are treated as estimator noise (e.g. a
// page dominated by a photograph) and ignored.
const (
	SkewThresholdDeg = 0.5
	MaxSkewDeg       = 15.0
)

// PreprocessPage runs the raster cleanup chain on one page image:
// grayscale, edge-preserving smoothing, Otsu binarization, a
// dilate-then-erode pass against speckle noise, and skew correction.
// The result is a black-on-white binary image ready for OCR.
func PreprocessPage(img image.Image) *image.Gray {
	g := toGray(img)
	g = medianFilter3(g)
	bin := binarize(g, otsuThreshold(g))
	bin = erodeFg(dilateFg(bin))

	angle := EstimateSkew(bin)
	if math.Abs(angle) > SkewThresholdDeg && math.Abs(angle) <= MaxSkewDeg {
		bin = rotateGray(bin, -angle)
	}
	return bin
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return g
}

// medianFilter3 applies a 3x3 median filter: smooths scanner noise
// while preserving glyph edges, unlike a box blur.
func medianFilter3(g *image.Gray) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	var win [9]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < b.Min.X || xx >= b.Max.X || yy < b.Min.Y || yy >= b.Max.Y {
						continue
					}
					win[n] = g.GrayAt(xx, yy).Y
					n++
				}
			}
			s := win[:n]
			sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
			out.SetGray(x, y, color.Gray{Y: s[n/2]})
		}
	}
	return out
}

// otsuThreshold picks the global threshold maximizing between-class
// variance of the gray histogram.
func otsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	b := g.Bounds()
	total := b.Dx() * b.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[g.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	bestVar, best := -1.0, 127
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			best = t
		}
	}
	return uint8(best)
}

// binarize maps pixels at or below the threshold (ink) to black and
// the rest to white.
func binarize(g *image.Gray, threshold uint8) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y <= threshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// dilateFg grows foreground (black) by one pixel with a 3x3 kernel.
func dilateFg(g *image.Gray) *image.Gray {
	return morph3(g, true)
}

// erodeFg shrinks foreground (black) by one pixel with a 3x3 kernel.
// dilate-then-erode closes pinholes inside glyphs and drops speckles
// smaller than the kernel.
func erodeFg(g *image.Gray) *image.Gray {
	return morph3(g, false)
}

func morph3(g *image.Gray, dilate bool) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hit := false
			for dy := -1; dy <= 1 && !hit; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < b.Min.X || xx >= b.Max.X || yy < b.Min.Y || yy >= b.Max.Y {
						continue
					}
					black := g.GrayAt(xx, yy).Y == 0
					if dilate && black {
						hit = true
						break
					}
					if !dilate && !black {
						hit = true
						break
					}
				}
			}
			// dilate: black if any neighbor black; erode: black only if all neighbors black
			if dilate == hit {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// EstimateSkew returns the page's estimated skew in degrees, derived
// from the orientation of the minimum-area bounding rectangle of the
// foreground pixels. Positive means the text block is rotated
// counter-clockwise.
func EstimateSkew(bin *image.Gray) float64 {
	pts := foregroundPoints(bin, 4096)
	if len(pts) < 16 {
		return 0
	}
	hull := convexHull(pts)
	if len(hull) < 3 {
		return 0
	}
	angle := minAreaRectAngle(hull)
	// fold into (-45, 45]: a text block's long axis, not its reading
	// orientation, is what the rect captures
	for angle > 45 {
		angle -= 90
	}
	for angle <= -45 {
		angle += 90
	}
	return angle
}

type point struct{ x, y float64 }

// foregroundPoints samples up to max black pixels on a uniform grid so
// hull construction stays cheap on 300-DPI pages.
func foregroundPoints(bin *image.Gray, max int) []point {
	b := bin.Bounds()
	stride := 1
	for (b.Dx()/stride)*(b.Dy()/stride) > max*16 {
		stride++
	}
	var pts []point
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			if bin.GrayAt(x, y).Y == 0 {
				pts = append(pts, point{float64(x), float64(y)})
				if len(pts) >= max {
					return pts
				}
			}
		}
	}
	return pts
}

// convexHull computes the hull with Andrew's monotone chain, returned
// counter-clockwise without the closing point.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})

	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}

	var lower []point
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper []point
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// minAreaRectAngle runs rotating calipers over the hull: the
// minimum-area enclosing rectangle has a side collinear with some hull
// edge, so trying every edge direction suffices.
func minAreaRectAngle(hull []point) float64 {
	bestArea := math.Inf(1)
	bestAngle := 0.0
	for i := 0; i < len(hull); i++ {
		p1 := hull[i]
		p2 := hull[(i+1)%len(hull)]
		theta := math.Atan2(p2.y-p1.y, p2.x-p1.x)
		cos, sin := math.Cos(theta), math.Sin(theta)

		minX, maxX := math.Inf(1), math.Inf(-1)
		minY, maxY := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			// project into the edge-aligned frame
			rx := p.x*cos + p.y*sin
			ry := -p.x*sin + p.y*cos
			minX = math.Min(minX, rx)
			maxX = math.Max(maxX, rx)
			minY = math.Min(minY, ry)
			maxY = math.Max(maxY, ry)
		}
		area := (maxX - minX) * (maxY - minY)
		if area < bestArea {
			bestArea = area
			bestAngle = theta * 180 / math.Pi
		}
	}
	return bestAngle
}

// rotateGray rotates the image by deg around its center with inverse
// nearest-neighbor mapping, filling uncovered pixels with white.
func rotateGray(g *image.Gray, deg float64) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx := float64(b.Min.X+b.Max.X) / 2
	cy := float64(b.Min.Y+b.Max.Y) / 2

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			// inverse rotation: where did this output pixel come from
			dx := float64(x) - cx
			dy := float64(y) - cy
			sx := int(math.Round(cx + dx*cos + dy*sin))
			sy := int(math.Round(cy - dx*sin + dy*cos))
			if sx >= b.Min.X && sx < b.Max.X && sy >= b.Min.Y && sy < b.Max.Y {
				out.SetGray(x, y, g.GrayAt(sx, sy))
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}
