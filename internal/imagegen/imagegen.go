// Package imagegen produces one still per script segment.
package imagegen

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/source"
	"github.com/ivlev/prompt2video/internal/system"
)

type Request struct {
	Index   int
	Segment string
	Emotion string
	Style   string
	LoRA    string
	OutDir  string
}

// Generator returns the path of a decodable image for the request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// StyleModels maps a visual style to a diffusion checkpoint.
var StyleModels = map[string]string{
	"pixar":     "nerijs/pixart-alpha",
	"anime":     "Linaqruf/anything-v3.0",
	"realistic": "runwayml/stable-diffusion-v1-5",
}

// ModelForStyle falls back to the realistic checkpoint for unknown styles.
func ModelForStyle(style string) string {
	if m, ok := StyleModels[style]; ok {
		return m
	}
	return StyleModels["realistic"]
}

func FormatPrompt(segment, emotion string) string {
	return fmt.Sprintf("%s, dreamy, %s, ultra-detailed", segment, emotion)
}

// New picks the backend configured in cfg.Tools.ImageBackend. The deck
// backend keeps the source open; call Close on the result when done.
func New(cfg *config.Config, r system.Runner, logger *zap.Logger) (Generator, error) {
	switch cfg.Tools.ImageBackend {
	case "diffusers":
		return &DiffusersGenerator{
			Runner:     r,
			Python:     cfg.Tools.Python,
			ScriptsDir: cfg.Tools.ScriptsDir,
			Logger:     logger,
		}, nil
	case "deck":
		src, err := source.Open(cfg.Tools.DeckPath)
		if err != nil {
			return nil, fmt.Errorf("open deck %s: %w", cfg.Tools.DeckPath, err)
		}
		return &DeckGenerator{Source: src, DPI: 150, Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown image backend %q", cfg.Tools.ImageBackend)
}

// Validate проверяет, что файл действительно картинка, и возвращает её размер.
func Validate(path string) (int, int, error) {
	img, err := source.DecodeFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("generated image is unusable: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0, 0, fmt.Errorf("generated image %s is empty", path)
	}
	return b.Dx(), b.Dy(), nil
}
