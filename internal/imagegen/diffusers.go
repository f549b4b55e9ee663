package imagegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/pyhelpers"
	"github.com/ivlev/prompt2video/internal/system"
)

// DiffusersGenerator runs Stable Diffusion through the embedded helper.
type DiffusersGenerator struct {
	Runner     system.Runner
	Python     string
	ScriptsDir string
	Logger     *zap.Logger
}

func (g *DiffusersGenerator) Generate(ctx context.Context, req Request) (string, error) {
	dir := g.ScriptsDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "prompt2video_helpers")
	}
	helper, err := pyhelpers.Install(dir, pyhelpers.Diffusion)
	if err != nil {
		return "", err
	}

	out := filepath.Join(req.OutDir, fmt.Sprintf("frame_%d.png", req.Index))
	model := ModelForStyle(req.Style)
	prompt := FormatPrompt(req.Segment, req.Emotion)

	args := []string{helper, "--model", model, "--prompt", prompt, "--out", out}
	if req.LoRA != "" {
		args = append(args, "--lora", req.LoRA)
	}

	if g.Logger != nil {
		g.Logger.Info("Generating image",
			zap.Int("segment", req.Index),
			zap.String("model", model),
			zap.String("lora", req.LoRA),
		)
	}

	if _, err := g.Runner.Run(ctx, system.Command{Name: g.Python, Args: args}); err != nil {
		return "", fmt.Errorf("diffusion segment %d: %w", req.Index, err)
	}
	if _, _, err := Validate(out); err != nil {
		return "", err
	}
	return out, nil
}
