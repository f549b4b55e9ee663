// Package music provides the background track: generated, user supplied, or
// none at all.
package music

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/pyhelpers"
	"github.com/ivlev/prompt2video/internal/system"
)

const (
	Auto = "auto"
	None = "none"

	// MusicGen держит до 30 секунд; на сборке трек всё равно зацикливается
	maxGenerated = 30.0
)

type Generator interface {
	Generate(ctx context.Context, emotion string, seconds float64, outPath string) error
}

// MusicGen runs audiocraft's MusicGen through the embedded helper.
type MusicGen struct {
	Runner     system.Runner
	Python     string
	ScriptsDir string
	Model      string
}

func Description(emotion string) string {
	return fmt.Sprintf("%s background music", emotion)
}

func (m *MusicGen) Generate(ctx context.Context, emotion string, seconds float64, outPath string) error {
	dir := m.ScriptsDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "prompt2video_helpers")
	}
	helper, err := pyhelpers.Install(dir, pyhelpers.MusicGen)
	if err != nil {
		return err
	}

	duration := math.Min(seconds, maxGenerated)
	_, err = m.Runner.Run(ctx, system.Command{
		Name: m.Python,
		Args: []string{
			helper,
			"--model", m.Model,
			"--description", Description(emotion),
			"--duration", fmt.Sprintf("%.1f", duration),
			"--out", outPath,
		},
	})
	if err != nil {
		return fmt.Errorf("musicgen: %w", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("musicgen output missing: %w", err)
	}
	return nil
}

type Resolver struct {
	Generator Generator
	Logger    *zap.Logger
}

// Resolve applies the --music rule and returns the track path or "" for no
// music. It never fails the run: problems are logged as warnings.
func (r *Resolver) Resolve(ctx context.Context, spec, emotion string, seconds float64, dir string) string {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "", None:
		return ""
	case Auto:
		if r.Generator == nil {
			logger.Warn("Music generation is not configured, continuing without music")
			return ""
		}
		out := filepath.Join(dir, "music.wav")
		logger.Info("Generating background music", zap.String("emotion", emotion))
		if err := r.Generator.Generate(ctx, emotion, seconds, out); err != nil {
			logger.Warn("Music generation failed, continuing without music", zap.Error(err))
			return ""
		}
		return out
	}

	fi, err := os.Stat(spec)
	if err != nil {
		logger.Warn("Music file not found, continuing without music", zap.String("path", spec))
		return ""
	}
	if fi.IsDir() {
		latest, err := system.FindLatestAudio(spec)
		if err != nil {
			logger.Warn("No audio in music folder", zap.String("path", spec), zap.Error(err))
			return ""
		}
		return latest
	}
	return spec
}
