package video

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/effects"
	"github.com/ivlev/prompt2video/internal/system"
)

// Clip: исходники одного сегмента. Visual это картинка или mp4 от SadTalker,
// Audio это речь, пустой Audio даёт тишину.
type Clip struct {
	Visual string
	Audio  string
	Params config.SegmentParams
}

// ClipFile: уже закодированный клип.
type ClipFile struct {
	Path     string
	Duration float64
}

type VideoEncoder interface {
	EncodeClip(ctx context.Context, clip Clip, out string) error
	Assemble(ctx context.Context, clips []ClipFile, music string, out string) error
	EncodeEndCard(ctx context.Context, url string, params config.SegmentParams, out string) error
	TotalDuration(clips []ClipFile) float64
}

type FFmpegEncoder struct {
	Runner  system.Runner
	FFmpeg  string
	Codec   string
	Quality int
	FPS     int
	Effect  effects.Effect

	TransitionType string
	FadeDuration   float64
	MusicVolume    float64

	Logger *zap.Logger
}

func NewFFmpegEncoder(cfg *config.Config, r system.Runner, logger *zap.Logger) *FFmpegEncoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegEncoder{
		Runner:         r,
		FFmpeg:         cfg.Tools.FFmpeg,
		Codec:          cfg.VideoEncoder,
		Quality:        cfg.Quality,
		FPS:            cfg.FPS,
		Effect:         &effects.DefaultEffect{},
		TransitionType: cfg.TransitionType,
		FadeDuration:   cfg.FadeDuration,
		MusicVolume:    cfg.MusicVolume,
		Logger:         logger,
	}
}

// IsVideoFile: результат анимации отличаем от картинки по расширению.
func IsVideoFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".mkv", ".webm":
		return true
	}
	return false
}

func (e *FFmpegEncoder) EncodeClip(ctx context.Context, clip Clip, out string) error {
	args := e.clipArgs(clip, out)
	if _, err := e.Runner.Run(ctx, system.Command{Name: e.FFmpeg, Args: args}); err != nil {
		return fmt.Errorf("encode clip %d: %w", clip.Params.PageIndex, err)
	}
	return nil
}

func (e *FFmpegEncoder) clipArgs(clip Clip, out string) []string {
	p := clip.Params
	p.Animated = IsVideoFile(clip.Visual)

	args := []string{"-y"}
	if p.Animated {
		args = append(args, "-i", clip.Visual)
	} else {
		args = append(args, "-loop", "1", "-framerate", fmt.Sprintf("%d", p.FPS), "-i", clip.Visual)
	}

	if clip.Audio != "" {
		args = append(args, "-i", clip.Audio)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r=44100:cl=stereo")
	}

	args = append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-vf", e.Effect.GenerateFilter(p),
		// Речь добивается тишиной и обрезается ровно по длине клипа
		"-af", "apad",
		"-t", fmt.Sprintf("%.3f", p.Duration),
		"-r", fmt.Sprintf("%d", p.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", e.Codec,
	)
	args = append(args, e.qualityArgs()...)
	args = append(args, "-c:a", "aac", "-ar", "44100", "-ac", "2", out)
	return args
}

func (e *FFmpegEncoder) qualityArgs() []string {
	// Качество в зависимости от энкодера
	switch e.Codec {
	case "h264_videotoolbox":
		// VideoToolbox не везде понимает -q:v, используем битрейт. 75 -> 7.5 Мбит/с
		return []string{"-b:v", fmt.Sprintf("%dk", e.Quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", e.Quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", e.Quality), "-preset", "medium"}
	}
}

// Assemble склеивает клипы (concat или xfade) и подмешивает музыку.
func (e *FFmpegEncoder) Assemble(ctx context.Context, clips []ClipFile, music string, out string) error {
	if len(clips) == 0 {
		return fmt.Errorf("nothing to assemble")
	}
	args := e.assembleArgs(clips, music, out)

	e.Logger.Info("Сборка итогового видео",
		zap.Int("clips", len(clips)),
		zap.String("transition", e.TransitionType),
		zap.Bool("music", music != ""),
	)
	if _, err := e.Runner.Run(ctx, system.Command{Name: e.FFmpeg, Args: args}); err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) useTransition(n int) bool {
	return e.TransitionType != "" && e.TransitionType != "none" && n > 1 && e.FadeDuration > 0
}

func (e *FFmpegEncoder) assembleArgs(clips []ClipFile, music string, out string) []string {
	args := []string{"-y"}
	for _, c := range clips {
		args = append(args, "-i", c.Path)
	}

	var graph []string
	videoOut, audioOut := "[v]", "[a]"

	if e.useTransition(len(clips)) {
		// 1. Видео: цепочка xfade, аудио: acrossfade
		lastV, lastA := "[0:v]", "[0:a]"
		offset := 0.0
		for i := 1; i < len(clips); i++ {
			offset += clips[i-1].Duration - e.FadeDuration
			outV, outA := fmt.Sprintf("[v%d]", i), fmt.Sprintf("[a%d]", i)
			graph = append(graph,
				fmt.Sprintf("%s[%d:v]xfade=transition=%s:duration=%.3f:offset=%.3f%s",
					lastV, i, e.TransitionType, e.FadeDuration, offset, outV),
				fmt.Sprintf("%s[%d:a]acrossfade=d=%.3f%s", lastA, i, e.FadeDuration, outA),
			)
			lastV, lastA = outV, outA
		}
		videoOut, audioOut = lastV, lastA
	} else {
		var inputs strings.Builder
		for i := range clips {
			fmt.Fprintf(&inputs, "[%d:v][%d:a]", i, i)
		}
		graph = append(graph, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[v][a]", inputs.String(), len(clips)))
	}

	// 2. Музыка зацикливается и уходит под речь; normalize=0 складывает
	// дорожки без деления, громкость речи не меняется
	if music != "" {
		bgIndex := len(clips)
		args = append(args, "-stream_loop", "-1", "-i", music)
		graph = append(graph,
			fmt.Sprintf("[%d:a]volume=%.2f[bg]", bgIndex, e.MusicVolume),
			fmt.Sprintf("%s[bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]", audioOut),
		)
		audioOut = "[aout]"
	}

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", videoOut,
		"-map", audioOut,
		"-c:v", e.Codec,
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", e.FPS),
	)
	args = append(args, e.qualityArgs()...)
	args = append(args, "-c:a", "aac", "-b:a", "192k", "-movflags", "+faststart", out)
	return args
}

// TotalDuration: длина итогового ролика с учётом нахлёста переходов.
func (e *FFmpegEncoder) TotalDuration(clips []ClipFile) float64 {
	total := 0.0
	for _, c := range clips {
		total += c.Duration
	}
	if e.useTransition(len(clips)) {
		total -= float64(len(clips)-1) * e.FadeDuration
	}
	return total
}
