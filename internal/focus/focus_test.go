package focus

import (
	"image"
	"image/color"
	"testing"
)

func TestDetectFlatImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	if p := NewDetector().Detect(img); p != Center {
		t.Errorf("Flat image must give center, got %+v", p)
	}
}

func TestDetectFindsDetail(t *testing.T) {
	// Чёрный фон, белый квадрат в правом нижнем углу
	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.Black)
		}
	}
	for y := 280; y < 360; y++ {
		for x := 280; x < 360; x++ {
			img.Set(x, y, color.White)
		}
	}

	p := NewDetector().Detect(img)
	if p.X <= 0.55 || p.Y <= 0.55 {
		t.Errorf("Expected focus in bottom-right quadrant, got %+v", p)
	}
	if p.X > 1 || p.Y > 1 {
		t.Errorf("Focus out of frame: %+v", p)
	}
}

func TestDetectTinyImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	if p := NewDetector().Detect(img); p != Center {
		t.Errorf("Tiny image must give center, got %+v", p)
	}
}
