package engine

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/animate"
	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/focus"
	"github.com/ivlev/prompt2video/internal/imagegen"
	"github.com/ivlev/prompt2video/internal/music"
	"github.com/ivlev/prompt2video/internal/script"
	"github.com/ivlev/prompt2video/internal/system"
	"github.com/ivlev/prompt2video/internal/tts"
	"github.com/ivlev/prompt2video/internal/video"
)

// Stages: реализации всех шагов конвейера. В тестах подменяются целиком.
type Stages struct {
	Script   script.Writer
	Images   imagegen.Generator
	Speech   tts.Synthesizer
	Animator animate.Animator // nil, если анимация выключена
	Music    *music.Resolver
	Encoder  video.VideoEncoder
	Focus    *focus.Detector
	Probe    MediaProbe // nil: длина речи не проверяется
}

// MediaProbe возвращает длительность медиафайла в секундах.
type MediaProbe func(ctx context.Context, path string) (float64, error)

// NewStages собирает стадии по конфигу.
func NewStages(cfg *config.Config, r system.Runner, logger *zap.Logger) (*Stages, error) {
	writer, err := script.New(cfg, r, logger)
	if err != nil {
		return nil, err
	}
	images, err := imagegen.New(cfg, r, logger)
	if err != nil {
		return nil, err
	}
	speech, err := tts.New(cfg, r, logger)
	if err != nil {
		return nil, err
	}

	s := &Stages{
		Script: writer,
		Images: images,
		Speech: speech,
		Music: &music.Resolver{
			Generator: &music.MusicGen{
				Runner:     r,
				Python:     cfg.Tools.Python,
				ScriptsDir: cfg.Tools.ScriptsDir,
				Model:      cfg.Tools.MusicModel,
			},
			Logger: logger,
		},
		Encoder: video.NewFFmpegEncoder(cfg, r, logger),
		Focus:   focus.NewDetector(),
		Probe: func(ctx context.Context, path string) (float64, error) {
			return system.GetMediaDuration(ctx, r, cfg.Tools.FFprobe, path)
		},
	}
	if cfg.Animate {
		s.Animator = animate.NewSadTalker(cfg.Tools, r, logger)
	}
	return s, nil
}

// Close освобождает ресурсы стадий (открытый PDF колоды).
func (s *Stages) Close() error {
	if c, ok := s.Images.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
