// Package script turns a prompt into the short narration segments that drive
// the rest of the pipeline.
package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/config"
	"github.com/ivlev/prompt2video/internal/system"
)

// Filler pads a script that came back too short.
const Filler = "..."

// Writer generates exactly n script segments.
type Writer interface {
	Generate(ctx context.Context, prompt, emotion string, n int) ([]string, error)
}

// New picks the backend configured in cfg.Tools.ScriptBackend.
func New(cfg *config.Config, r system.Runner, logger *zap.Logger) (Writer, error) {
	switch cfg.Tools.ScriptBackend {
	case "hf":
		return &HFWriter{
			Runner:     r,
			Python:     cfg.Tools.Python,
			ScriptsDir: cfg.Tools.ScriptsDir,
			Model:      cfg.Tools.ScriptModel,
			Logger:     logger,
		}, nil
	case "openai":
		return NewOpenAIWriter(cfg.Tools.OpenAIKey, cfg.Tools.OpenAIBaseURL, cfg.Tools.OpenAIModel), nil
	case "gemini":
		return &GeminiWriter{APIKey: cfg.Tools.GeminiKey, Model: cfg.Tools.GeminiModel}, nil
	}
	return nil, fmt.Errorf("unknown script backend %q", cfg.Tools.ScriptBackend)
}

var numberWords = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten", "eleven", "twelve"}

func spell(n int) string {
	if n >= 0 && n < len(numberWords) {
		return numberWords[n]
	}
	return strconv.Itoa(n)
}

// BuildPrompt is the instruction given to the language model.
func BuildPrompt(prompt, emotion string, n int) string {
	return fmt.Sprintf(
		"Write a cinematic %s part script for a one minute video about: %s. "+
			"Each part should be roughly ten seconds long and convey a %s tone.",
		spell(n), prompt, emotion,
	)
}

// SplitSegments cuts model output into exactly n segments: one per line,
// falling back to sentences when there are too few lines, padded with Filler.
func SplitSegments(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	segments := nonEmpty(strings.Split(text, "\n"))
	if len(segments) < n {
		segments = nonEmpty(strings.Split(text, "."))
	}
	for len(segments) < n {
		segments = append(segments, Filler)
	}
	return segments[:n]
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stripEcho removes the instruction some text-generation pipelines repeat at
// the start of their output.
func stripEcho(output, instruction string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(output), instruction))
}
