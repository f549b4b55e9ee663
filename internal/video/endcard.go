package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/system"
)

var endCardBackground = color.RGBA{R: 18, G: 18, B: 24, A: 255}

// RenderEndCard рисует QR-код по центру тёмного кадра W×H.
func RenderEndCard(url string, width, height int) (*image.RGBA, error) {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr code: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: endCardBackground}, image.Point{}, draw.Src)

	side := height / 2
	if width < height {
		side = width / 2
	}
	qrImg := qr.Image(256)
	x0 := (width - side) / 2
	y0 := (height - side) / 2
	// NearestNeighbor, чтобы модули кода остались резкими
	draw.NearestNeighbor.Scale(canvas, image.Rect(x0, y0, x0+side, y0+side), qrImg, qrImg.Bounds(), draw.Over, nil)
	return canvas, nil
}

// EncodeEndCard кодирует финальный кадр с тишиной. Кадр уходит в ffmpeg
// через stdin в сыром RGBA.
func (e *FFmpegEncoder) EncodeEndCard(ctx context.Context, url string, p config.SegmentParams, out string) error {
	img, err := RenderEndCard(url, p.Width, p.Height)
	if err != nil {
		return err
	}

	p.Animated = true // один кадр растягивается tpad
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
		"-f", "lavfi", "-i", "anullsrc=r=44100:cl=stereo",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-vf", e.Effect.GenerateFilter(p),
		"-t", fmt.Sprintf("%.3f", p.Duration),
		"-r", fmt.Sprintf("%d", p.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", e.Codec,
	}
	args = append(args, e.qualityArgs()...)
	args = append(args, "-c:a", "aac", "-ar", "44100", "-ac", "2", out)

	_, err = e.Runner.Run(ctx, system.Command{
		Name:  e.FFmpeg,
		Args:  args,
		Stdin: bytes.NewReader(img.Pix),
	})
	if err != nil {
		return fmt.Errorf("encode end card: %w", err)
	}
	return nil
}
