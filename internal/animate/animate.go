// Package animate turns a still and its narration into a talking-head clip.
// Animation is optional: any failure leaves the still in place.
package animate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/system"
)

// Animator returns the animated clip, or imagePath when animation failed.
type Animator interface {
	Animate(ctx context.Context, imagePath, audioPath, resultDir string) string
}

const ErrorLogName = "sadtalker_error.log"

type SadTalker struct {
	Runner system.Runner
	Python string
	Script string
	Home   string
	Logger *zap.Logger
}

func NewSadTalker(tools config.Tools, r system.Runner, logger *zap.Logger) *SadTalker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SadTalker{
		Runner: r,
		Python: tools.SadTalkerPython,
		Script: tools.SadTalkerScript,
		Home:   tools.SadTalkerHome,
		Logger: logger,
	}
}

// ResultPath: куда SadTalker кладёт результат для данной картинки.
func ResultPath(resultDir, imagePath string) string {
	stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	return filepath.Join(resultDir, "results", "driven_audio", stem, "result.mp4")
}

func (s *SadTalker) Animate(ctx context.Context, imagePath, audioPath, resultDir string) string {
	s.Logger.Info("Animating with SadTalker", zap.String("image", imagePath))

	_, err := s.Runner.Run(ctx, system.Command{
		Name: s.Python,
		Args: []string{
			s.Script,
			"--source_image", imagePath,
			"--driven_audio", audioPath,
			"--result_dir", resultDir,
		},
		Dir: s.Home,
	})
	if err != nil {
		s.reportFailure(err, resultDir)
		return imagePath
	}

	gen := ResultPath(resultDir, imagePath)
	if _, err := os.Stat(gen); err != nil {
		s.Logger.Warn("SadTalker output missing", zap.String("path", gen))
		return imagePath
	}
	return gen
}

func (s *SadTalker) reportFailure(err error, resultDir string) {
	var toolErr *system.ToolError
	if !errors.As(err, &toolErr) {
		// Не запустился вовсе (нет venv, отменён контекст)
		s.Logger.Error("SadTalker failed", zap.Error(err))
		return
	}

	s.Logger.Error("SadTalker failed",
		zap.Int("code", toolErr.ExitCode),
		zap.String("stdout", toolErr.Stdout),
		zap.String("stderr", toolErr.Stderr),
	)

	logFile := filepath.Join(resultDir, ErrorLogName)
	content := fmt.Sprintf("STDOUT:\n%s\n\nSTDERR:\n%s\n", toolErr.Stdout, toolErr.Stderr)
	if err := os.WriteFile(logFile, []byte(content), 0644); err != nil {
		s.Logger.Warn("Failed to write error log", zap.Error(err))
		return
	}
	s.Logger.Info("Saved SadTalker error log", zap.String("path", logFile))
}
