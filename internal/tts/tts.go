// Package tts turns script segments into narration.
package tts

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/system"
)

const (
	DefaultModel   = "tts_models/en/vctk/vits"
	DefaultSpeaker = "p225" // первый голос VCTK
)

type Request struct {
	Index   int
	Text    string
	Emotion string
	Speaker string
	OutDir  string
}

// Synthesizer writes one speech file and returns its path.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

func New(cfg *config.Config, r system.Runner, logger *zap.Logger) (Synthesizer, error) {
	switch cfg.Tools.TTSBackend {
	case "coqui":
		return &CoquiSynthesizer{
			Runner:  r,
			Bin:     cfg.Tools.TTSBin,
			Model:   cfg.Tools.TTSModel,
			UseCUDA: cfg.Tools.TTSUseCUDA,
			Logger:  logger,
		}, nil
	case "openai":
		return NewOpenAISynthesizer(cfg.Tools.OpenAIKey, cfg.Tools.OpenAIBaseURL), nil
	}
	return nil, fmt.Errorf("unknown tts backend %q", cfg.Tools.TTSBackend)
}

// Voice is the resolved model and speaker selection for Coqui.
type Voice struct {
	Model      string
	SpeakerIdx string
	SpeakerWav string
}

// ResolveVoice interprets the --speaker value:
// empty -> default model with its first speaker, "tts_models/..." -> that
// model, an existing file -> voice cloning, anything else -> speaker id.
func ResolveVoice(speaker, defaultModel string) Voice {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}

	switch {
	case speaker == "":
		v := Voice{Model: defaultModel}
		if defaultModel == DefaultModel {
			v.SpeakerIdx = DefaultSpeaker
		}
		return v
	case strings.HasPrefix(speaker, "tts_models/"):
		return Voice{Model: speaker}
	}

	if fi, err := os.Stat(speaker); err == nil && !fi.IsDir() {
		return Voice{Model: defaultModel, SpeakerWav: speaker}
	}
	return Voice{Model: defaultModel, SpeakerIdx: speaker}
}

// SpokenText prefixes the emotion tag understood by emotion-aware models.
func SpokenText(text, emotion string) string {
	return fmt.Sprintf("<emotion>%s</emotion> %s", emotion, text)
}

// OutputPath is speech_<index>_<hash of text>.wav inside dir.
func OutputPath(dir string, index int, text string) string {
	h := fnv.New32a()
	h.Write([]byte(text))
	return filepath.Join(dir, fmt.Sprintf("speech_%d_%08x.wav", index, h.Sum32()))
}

func checkOutput(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("speech file missing: %w", err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("speech file %s is empty", path)
	}
	return nil
}
