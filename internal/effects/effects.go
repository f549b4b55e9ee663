package effects

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/ivlev/prompt2video/internal/config"
)

// Effect строит -vf цепочку для одного клипа.
type Effect interface {
	GenerateFilter(params config.SegmentParams) string
}

var cornerModes = []string{"center", "top-left", "top-right", "bottom-left", "bottom-right"}

// DefaultEffect: медленный зум для картинок, подгонка кадра для анимации,
// в обоих случаях fade in/out на концах клипа.
type DefaultEffect struct {
	// Seed для режима random; один и тот же Seed даёт те же углы
	Seed int64
}

func (e *DefaultEffect) GenerateFilter(p config.SegmentParams) string {
	var chain []string
	if p.Animated {
		chain = e.animatedChain(p)
	} else {
		chain = e.stillChain(p)
	}
	chain = append(chain, fadeChain(p)...)
	return strings.Join(chain, ",")
}

func (e *DefaultEffect) stillChain(p config.SegmentParams) []string {
	mode := e.resolveMode(p)
	if mode == "none" || p.ZoomFactor <= 1.0 {
		return []string{fitFilter(p.Width, p.Height), "setsar=1", fmt.Sprintf("fps=%d", p.FPS)}
	}

	zoomX, zoomY := zoomOrigin(mode, p)

	frames := int(p.Duration * float64(p.FPS))
	if frames < 1 {
		frames = 1
	}

	// Запас 2x по размеру убирает дрожание zoompan на целых пикселях
	aspectFilter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		p.Width*2, p.Height*2, p.Width*2, p.Height*2,
	)

	zFormula := fmt.Sprintf("min(1.0+%f*on/%d,%f)", p.ZoomFactor-1.0, frames, p.ZoomFactor)
	zoomFilter := fmt.Sprintf(
		"zoompan=z='%s':d=1:s=%dx%d:x='%s':y='%s':fps=%d",
		zFormula, p.Width*2, p.Height*2, zoomX, zoomY, p.FPS,
	)

	return []string{aspectFilter, zoomFilter, fmt.Sprintf("scale=%d:%d", p.Width, p.Height), "setsar=1"}
}

func (e *DefaultEffect) animatedChain(p config.SegmentParams) []string {
	return []string{
		// Короткий ролик добиваем последним кадром, лишнее срежет -t
		fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%.3f", p.Duration),
		fitFilter(p.Width, p.Height),
		"setsar=1",
		fmt.Sprintf("fps=%d", p.FPS),
	}
}

func (e *DefaultEffect) resolveMode(p config.SegmentParams) string {
	mode := strings.ToLower(p.ZoomMode)
	if mode == "random" {
		r := rand.New(rand.NewSource(e.Seed + int64(p.PageIndex*99)))
		mode = cornerModes[r.Intn(len(cornerModes))]
	}
	return mode
}

func zoomOrigin(mode string, p config.SegmentParams) (string, string) {
	switch mode {
	case "top-left":
		return "0", "0"
	case "top-right":
		return "iw-(iw/zoom)", "0"
	case "bottom-left":
		return "0", "ih-(ih/zoom)"
	case "bottom-right":
		return "iw-(iw/zoom)", "ih-(ih/zoom)"
	case "smart":
		// Окно зума центрируется на точке фокуса, но не выходит за кадр
		return fmt.Sprintf("max(0,min(iw-iw/zoom,%.4f*iw-iw/zoom/2))", p.FocusX),
			fmt.Sprintf("max(0,min(ih-ih/zoom,%.4f*ih-ih/zoom/2))", p.FocusY)
	default: // center
		return "iw/2-(iw/zoom/2)", "ih/2-(ih/zoom/2)"
	}
}

func fitFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)
}

func fadeChain(p config.SegmentParams) []string {
	if p.FadeDuration <= 0 {
		return nil
	}
	outStart := p.Duration - p.FadeDuration
	if outStart < 0 {
		outStart = 0
	}
	return []string{
		fmt.Sprintf("fade=t=in:st=0:d=%.3f", p.FadeDuration),
		fmt.Sprintf("fade=t=out:st=%.3f:d=%.3f", outStart, p.FadeDuration),
	}
}
