// Package opensora runs Open-Sora text-to-video inference from a local
// checkout, as an alternative to the still-image pipeline.
package opensora

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/system"
)

var ErrUnknownResolution = errors.New("unknown resolution")

var Resolutions = []string{"256px", "768px"}

type Options struct {
	Prompt     string
	Dir        string // клон Open-Sora
	Resolution string
	Offload    bool
	SaveDir    string
}

type Generator struct {
	Runner   system.Runner
	Torchrun string
	Logger   *zap.Logger
}

func NewGenerator(r system.Runner, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{Runner: r, Torchrun: "torchrun", Logger: logger}
}

// ExpandHome раскрывает ведущий "~/".
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func validResolution(res string) bool {
	for _, r := range Resolutions {
		if r == res {
			return true
		}
	}
	return false
}

// Args: аргументы torchrun для заданных опций; saveDir уже абсолютный.
func Args(opts Options, saveDir string) []string {
	args := []string{
		"--nproc_per_node", "1",
		"--standalone",
		"scripts/diffusion/inference.py",
		fmt.Sprintf("configs/diffusion/inference/t2i2v_%s.py", opts.Resolution),
		"--save-dir", saveDir,
		"--prompt", opts.Prompt,
	}
	if opts.Offload {
		args = append(args, "--offload", "True")
	}
	return args
}

// Generate runs inference and returns the directory holding the results.
func (g *Generator) Generate(ctx context.Context, opts Options) (string, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return "", errors.New("prompt is empty")
	}
	if !validResolution(opts.Resolution) {
		return "", fmt.Errorf("%w %q, expected one of %s", ErrUnknownResolution, opts.Resolution, strings.Join(Resolutions, ", "))
	}

	// torchrun работает из каталога Open-Sora, поэтому относительный save-dir
	// переводим в абсолютный от текущего каталога
	saveDir, err := filepath.Abs(ExpandHome(opts.SaveDir))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}

	cmd := system.Command{
		Name: g.Torchrun,
		Args: Args(opts, saveDir),
		Dir:  ExpandHome(opts.Dir),
	}
	g.Logger.Info("Running Open-Sora", zap.String("cmd", cmd.String()), zap.String("dir", cmd.Dir))

	if _, err := g.Runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("open-sora: %w", err)
	}
	return saveDir, nil
}
