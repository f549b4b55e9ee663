package web

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/engine"
	"github.com/ivlev/prompt2video/internal/jobs"
	"github.com/ivlev/prompt2video/internal/system"
)

// JobConfig derives the run config of a web job: the form always animates
// and never adds music, the video is named after the job.
func JobConfig(base *config.Config, job *jobs.Job, outputDir string) *config.Config {
	cfg := *base
	cfg.Prompt = job.Prompt
	cfg.Emotion = job.Emotion
	cfg.Style = job.Style
	cfg.Animate = true
	cfg.Music = "none"
	cfg.Output = filepath.Join(outputDir, job.ID+".mp4")
	cfg.StoryboardIn = ""
	cfg.StoryboardOut = filepath.Join(outputDir, job.ID+".yaml")
	cfg.ShowStats = false
	return &cfg
}

// EngineRunner returns the jobs.RunFunc that drives the full pipeline.
func EngineRunner(base *config.Config, r system.Runner, logger *zap.Logger, outputDir string) jobs.RunFunc {
	return func(ctx context.Context, job *jobs.Job, progress func(stage, message string)) (string, error) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return "", err
		}
		cfg := JobConfig(base, job, outputDir)
		if err := cfg.Validate(); err != nil {
			return "", err
		}

		jobLogger := logger.With(zap.String("job", job.ID))
		stages, err := engine.NewStages(cfg, r, jobLogger)
		if err != nil {
			return "", err
		}
		defer stages.Close()

		project := engine.NewProject(cfg, stages, jobLogger)
		project.Progress = func(e engine.Event) {
			msg := e.Message
			if e.Total > 0 && e.Stage != engine.StageDone {
				msg = fmt.Sprintf("%s %d/%d: %s", e.Stage, e.Segment+1, e.Total, e.Message)
			}
			progress(e.Stage, msg)
		}
		return project.Run(ctx)
	}
}
