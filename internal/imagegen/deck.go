package imagegen

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/source"
)

// DeckGenerator берёт готовые кадры из PDF или папки картинок вместо
// диффузии. Если страниц меньше, чем сегментов, идём по кругу.
type DeckGenerator struct {
	Source source.Source
	DPI    int
	Logger *zap.Logger

	mu sync.Mutex
}

func (g *DeckGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	img, err := g.Source.RenderPage(req.Index, g.DPI)
	g.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", req.Index, err)
	}

	out := filepath.Join(req.OutDir, fmt.Sprintf("frame_%d.png", req.Index))
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if g.Logger != nil {
		g.Logger.Debug("Кадр из колоды", zap.Int("segment", req.Index), zap.String("path", out))
	}
	return out, nil
}

func (g *DeckGenerator) Close() error {
	return g.Source.Close()
}
