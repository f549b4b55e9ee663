package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ivlev/prompt2video/internal/system"
)

// CoquiSynthesizer drives the Coqui `tts` command line tool.
type CoquiSynthesizer struct {
	Runner  system.Runner
	Bin     string
	Model   string
	UseCUDA bool
	Logger  *zap.Logger
}

func (s *CoquiSynthesizer) Args(req Request, out string) []string {
	voice := ResolveVoice(req.Speaker, s.Model)
	args := []string{
		"--text", SpokenText(req.Text, req.Emotion),
		"--model_name", voice.Model,
		"--out_path", out,
	}
	if voice.SpeakerWav != "" {
		args = append(args, "--speaker_wav", voice.SpeakerWav)
	} else if voice.SpeakerIdx != "" {
		args = append(args, "--speaker_idx", voice.SpeakerIdx)
	}
	if s.UseCUDA {
		args = append(args, "--use_cuda", "true")
	}
	return args
}

func (s *CoquiSynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	out := OutputPath(req.OutDir, req.Index, req.Text)
	args := s.Args(req, out)

	if s.Logger != nil {
		s.Logger.Info("Generating audio",
			zap.Int("segment", req.Index),
			zap.String("model", ResolveVoice(req.Speaker, s.Model).Model),
		)
	}

	if _, err := s.Runner.Run(ctx, system.Command{Name: s.Bin, Args: args}); err != nil {
		return "", fmt.Errorf("tts segment %d: %w", req.Index, err)
	}
	if err := checkOutput(out); err != nil {
		return "", err
	}
	return out, nil
}
