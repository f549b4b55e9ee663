package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/imagegen"
	"github.com/ivlev/prompt2video/internal/source"
	"github.com/ivlev/prompt2video/internal/storyboard"
	"github.com/ivlev/prompt2video/internal/tts"
	"github.com/ivlev/prompt2video/internal/video"
)

// Стадии для событий прогресса
const (
	StageScript   = "script"
	StageImage    = "image"
	StageAudio    = "audio"
	StageAnimate  = "animate"
	StageMusic    = "music"
	StageEncode   = "encode"
	StageAssemble = "assemble"
	StageDone     = "done"
)

const endCardDuration = 4.0

type Event struct {
	Stage   string `json:"stage"`
	Segment int    `json:"segment"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

type ProgressFunc func(Event)

type Project struct {
	Config   *config.Config
	Stages   *Stages
	Logger   *zap.Logger
	Progress ProgressFunc

	tempDir string
	timings timings
}

type timings struct {
	script, media, encode, assemble time.Duration
}

func NewProject(cfg *config.Config, stages *Stages, logger *zap.Logger) *Project {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Project{Config: cfg, Stages: stages, Logger: logger}
}

func (p *Project) emit(stage string, segment, total int, msg string) {
	if p.Progress != nil {
		p.Progress(Event{Stage: stage, Segment: segment, Total: total, Message: msg})
	}
}

// Run проходит весь конвейер и возвращает путь к готовому видео.
func (p *Project) Run(ctx context.Context) (string, error) {
	startTime := time.Now()
	cfg := p.Config

	var err error
	p.tempDir, err = os.MkdirTemp("", "prompt2video_")
	if err != nil {
		return "", err
	}
	if cfg.KeepTemp {
		p.Logger.Info("Временные файлы сохраняются", zap.String("dir", p.tempDir))
	} else {
		defer os.RemoveAll(p.tempDir)
	}

	// 1. Сценарий
	t := time.Now()
	sb, err := p.loadScript(ctx)
	if err != nil {
		return "", fmt.Errorf("script: %w", err)
	}
	p.timings.script = time.Since(t)
	total := len(sb.Segments)

	// 2. Картинки, речь и анимация идут последовательно: модели делят один GPU
	t = time.Now()
	for i := range sb.Segments {
		if err := p.produceSegment(ctx, sb, i); err != nil {
			return "", err
		}
	}
	p.timings.media = time.Since(t)

	// 3. Клипы
	t = time.Now()
	clips, err := p.encodeClips(ctx, sb)
	if err != nil {
		return "", err
	}
	p.timings.encode = time.Since(t)

	// 4. Музыка на всю длину ролика: с нахлёстом переходов и заставкой
	p.emit(StageMusic, 0, total, "background music")
	videoSeconds := p.Stages.Encoder.TotalDuration(clips)
	musicPath := p.Stages.Music.Resolve(ctx, cfg.Music, sb.Emotion, videoSeconds, p.tempDir)
	sb.Music = cfg.Music

	// 5. Сборка
	t = time.Now()
	p.emit(StageAssemble, 0, total, "assembling final video")
	if dir := filepath.Dir(cfg.Output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}
	if err := p.Stages.Encoder.Assemble(ctx, clips, musicPath, cfg.Output); err != nil {
		return "", fmt.Errorf("assembly: %w", err)
	}
	p.timings.assemble = time.Since(t)

	if cfg.StoryboardOut != "" {
		if err := storyboard.Export(sb, cfg.StoryboardOut); err != nil {
			return "", fmt.Errorf("write storyboard: %w", err)
		}
		p.Logger.Info("Сценарий сохранён", zap.String("path", cfg.StoryboardOut),
			zap.String("media", storyboard.MediaDir(cfg.StoryboardOut)))
	}

	if cfg.ShowStats {
		p.report(ctx, time.Since(startTime), total)
	}

	p.emit(StageDone, total, total, cfg.Output)
	return cfg.Output, nil
}

func (p *Project) loadScript(ctx context.Context) (*storyboard.Storyboard, error) {
	cfg := p.Config
	if cfg.StoryboardIn != "" {
		sb, err := storyboard.Read(cfg.StoryboardIn)
		if err != nil {
			return nil, err
		}
		p.Logger.Info("Используется сценарий", zap.String("path", cfg.StoryboardIn), zap.Int("segments", len(sb.Segments)))
		// Явно заданные флаги важнее сохранённых значений
		if cfg.PromptSet || sb.Prompt == "" {
			sb.Prompt = cfg.Prompt
		}
		if cfg.EmotionSet || sb.Emotion == "" {
			sb.Emotion = cfg.Emotion
		}
		if cfg.StyleSet || sb.Style == "" {
			sb.Style = cfg.Style
		}
		for i := range sb.Segments {
			sb.Segments[i].Duration = cfg.SegmentDuration
		}
		return sb, nil
	}

	p.emit(StageScript, 0, cfg.SegmentCount, "writing script")
	texts, err := p.Stages.Script.Generate(ctx, cfg.Prompt, cfg.Emotion, cfg.SegmentCount)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		p.Logger.Debug("Segment", zap.Int("index", i), zap.String("text", text))
	}
	return storyboard.New(cfg.Prompt, cfg.Emotion, cfg.Style, texts, cfg.SegmentDuration), nil
}

func (p *Project) produceSegment(ctx context.Context, sb *storyboard.Storyboard, i int) error {
	cfg := p.Config
	seg := &sb.Segments[i]
	total := len(sb.Segments)

	if path := storyboard.Reusable(seg.Image); path != "" {
		p.Logger.Info("Картинка переиспользована", zap.Int("segment", i), zap.String("path", path))
	} else {
		p.emit(StageImage, i, total, seg.Text)
		path, err := p.Stages.Images.Generate(ctx, imagegen.Request{
			Index:   i,
			Segment: seg.Text,
			Emotion: sb.Emotion,
			Style:   sb.Style,
			LoRA:    cfg.LoRA,
			OutDir:  p.tempDir,
		})
		if err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
		seg.Image = path
	}

	if path := storyboard.Reusable(seg.Audio); path != "" {
		p.Logger.Info("Речь переиспользована", zap.Int("segment", i), zap.String("path", path))
	} else {
		p.emit(StageAudio, i, total, seg.Text)
		path, err := p.Stages.Speech.Synthesize(ctx, tts.Request{
			Index:   i,
			Text:    seg.Text,
			Emotion: sb.Emotion,
			Speaker: cfg.Speaker,
			OutDir:  p.tempDir,
		})
		if err != nil {
			return fmt.Errorf("audio %d: %w", i, err)
		}
		seg.Audio = path
	}
	p.checkNarration(ctx, i, seg.Audio)

	seg.Visual, seg.Animated = seg.Image, false
	if p.Stages.Animator != nil {
		p.emit(StageAnimate, i, total, seg.Text)
		visual := p.Stages.Animator.Animate(ctx, seg.Image, seg.Audio, p.tempDir)
		seg.Visual = visual
		seg.Animated = video.IsVideoFile(visual)
	}

	p.Logger.Info("Сегмент готов", zap.Int("segment", i+1), zap.Int("total", total), zap.Bool("animated", seg.Animated))
	return nil
}

// checkNarration предупреждает, если речь длиннее сегмента: хвост будет обрезан.
func (p *Project) checkNarration(ctx context.Context, i int, audio string) {
	if p.Stages.Probe == nil {
		return
	}
	d, err := p.Stages.Probe(ctx, audio)
	if err != nil {
		p.Logger.Warn("Длительность речи неизвестна", zap.Int("segment", i), zap.Error(err))
		return
	}
	if d > p.Config.SegmentDuration {
		p.Logger.Warn("Narration is longer than the segment and will be cut",
			zap.Int("segment", i),
			zap.Float64("speech", d),
			zap.Float64("segment_duration", p.Config.SegmentDuration),
		)
	}
}

// encodeClips кодирует клипы пулом из Workers горутин, порядок сохраняется.
func (p *Project) encodeClips(ctx context.Context, sb *storyboard.Storyboard) ([]video.ClipFile, error) {
	cfg := p.Config
	total := len(sb.Segments)

	n := total
	if cfg.EndCardURL != "" {
		n++
	}
	results := make([]video.ClipFile, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i := range sb.Segments {
		seg := sb.Segments[i]
		params := p.segmentParams(i, seg)
		out := filepath.Join(p.tempDir, fmt.Sprintf("clip_%d.mp4", i))

		g.Go(func() error {
			clip := video.Clip{Visual: seg.Visual, Audio: seg.Audio, Params: params}
			if err := p.Stages.Encoder.EncodeClip(gctx, clip, out); err != nil {
				return err
			}
			results[i] = video.ClipFile{Path: out, Duration: params.Duration}
			p.emit(StageEncode, i, total, fmt.Sprintf("clip %d/%d", i+1, total))
			return nil
		})
	}

	if cfg.EndCardURL != "" {
		params := cfg.Segment(total)
		params.ZoomMode = "none"
		if params.FadeDuration*2 < endCardDuration {
			params.Duration = endCardDuration
		}
		out := filepath.Join(p.tempDir, "endcard.mp4")
		g.Go(func() error {
			if err := p.Stages.Encoder.EncodeEndCard(gctx, cfg.EndCardURL, params, out); err != nil {
				return err
			}
			results[total] = video.ClipFile{Path: out, Duration: params.Duration}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	return results, nil
}

func (p *Project) segmentParams(i int, seg storyboard.Segment) config.SegmentParams {
	params := p.Config.Segment(i)
	params.Animated = seg.Animated
	if params.ZoomMode != "smart" || seg.Animated {
		return params
	}

	img, err := source.DecodeFile(seg.Visual)
	if err != nil {
		p.Logger.Warn("Фокус не найден, зум по центру", zap.Int("segment", i), zap.Error(err))
		return params
	}
	pt := p.Stages.Focus.Detect(img)
	params.FocusX, params.FocusY = pt.X, pt.Y
	p.Logger.Debug("Точка фокуса", zap.Int("segment", i), zap.Float64("x", pt.X), zap.Float64("y", pt.Y))
	return params
}
