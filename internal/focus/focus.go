// Package focus finds where a still image is most detailed, so the slow zoom
// can drift towards the subject instead of the frame centre.
package focus

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Point is a position in frame fractions, (0.5, 0.5) being the centre.
type Point struct {
	X, Y float64
}

var Center = Point{X: 0.5, Y: 0.5}

// Detector scores edge energy on a coarse grid.
type Detector struct {
	MaxSide int // image is downscaled so the longest side is at most MaxSide
	Grid    int // cells per side
	// EdgeThreshold drops weak gradients (noise, smooth gradients of the sky)
	EdgeThreshold float64
}

func NewDetector() *Detector {
	return &Detector{
		MaxSide:       256,
		Grid:          8,
		EdgeThreshold: 30.0,
	}
}

// Detect returns the centre of the grid cell whose 3x3 neighbourhood holds the
// most edge energy. Flat images give Center.
func (d *Detector) Detect(img image.Image) Point {
	gray := d.downscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 || d.Grid <= 0 {
		return Center
	}

	cells := make([][]float64, d.Grid)
	for i := range cells {
		cells[i] = make([]float64, d.Grid)
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			m := sobel(gray, b.Min.X+x, b.Min.Y+y)
			if m <= d.EdgeThreshold {
				continue
			}
			cy := y * d.Grid / h
			cx := x * d.Grid / w
			cells[cy][cx] += m
		}
	}

	best, bestX, bestY := 0.0, -1, -1
	for cy := 0; cy < d.Grid; cy++ {
		for cx := 0; cx < d.Grid; cx++ {
			sum := 0.0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := cy+dy, cx+dx
					if ny >= 0 && ny < d.Grid && nx >= 0 && nx < d.Grid {
						sum += cells[ny][nx]
					}
				}
			}
			if sum > best {
				best, bestX, bestY = sum, cx, cy
			}
		}
	}

	if bestX < 0 {
		return Center
	}
	return Point{
		X: (float64(bestX) + 0.5) / float64(d.Grid),
		Y: (float64(bestY) + 0.5) / float64(d.Grid),
	}
}

func (d *Detector) downscale(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if longest := math.Max(float64(w), float64(h)); d.MaxSide > 0 && longest > float64(d.MaxSide) {
		scale = float64(d.MaxSide) / longest
	}
	dw := int(math.Max(1, math.Round(float64(w)*scale)))
	dh := int(math.Max(1, math.Round(float64(h)*scale)))

	gray := image.NewGray(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	return gray
}

var (
	kernelX = [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	kernelY = [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
)

func sobel(g *image.Gray, x, y int) float64 {
	var sx, sy float64
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			p := float64(g.GrayAt(x+kx, y+ky).Y)
			sx += p * kernelX[ky+1][kx+1]
			sy += p * kernelY[ky+1][kx+1]
		}
	}
	return math.Sqrt(sx*sx + sy*sy)
}
