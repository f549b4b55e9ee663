package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/pyhelpers"
	"github.com/ivlev/prompt2video/internal/system"
)

// HFWriter runs a local transformers text-generation model through the
// embedded python helper.
type HFWriter struct {
	Runner     system.Runner
	Python     string
	ScriptsDir string
	Model      string
	Logger     *zap.Logger
}

func (w *HFWriter) Generate(ctx context.Context, prompt, emotion string, n int) ([]string, error) {
	dir := w.ScriptsDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "prompt2video_helpers")
	}
	helper, err := pyhelpers.Install(dir, pyhelpers.TextGen)
	if err != nil {
		return nil, err
	}

	instruction := BuildPrompt(prompt, emotion, n)
	if w.Logger != nil {
		w.Logger.Info("Generating script", zap.String("model", w.Model))
	}

	res, err := w.Runner.Run(ctx, system.Command{
		Name: w.Python,
		Args: []string{helper, "--model", w.Model, "--prompt", instruction, "--max-new-tokens", "200"},
	})
	if err != nil {
		return nil, fmt.Errorf("text generation: %w", err)
	}

	return SplitSegments(stripEcho(string(res.Stdout), instruction), n), nil
}
