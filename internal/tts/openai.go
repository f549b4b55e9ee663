package tts

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sashabaranov/go-openai"
)

var openAIVoices = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"shimmer": openai.VoiceShimmer,
}

// OpenAISynthesizer uses the speech endpoint. The emotion tag is not sent:
// the hosted voices would read it aloud.
type OpenAISynthesizer struct {
	client *openai.Client
	Model  openai.SpeechModel
}

func NewOpenAISynthesizer(apiKey, baseURL string) *OpenAISynthesizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAISynthesizer{client: openai.NewClientWithConfig(cfg), Model: openai.TTSModel1}
}

// OpenAIVoice maps the speaker flag to a hosted voice, alloy by default.
func OpenAIVoice(speaker string) openai.SpeechVoice {
	if v, ok := openAIVoices[speaker]; ok {
		return v
	}
	return openai.VoiceAlloy
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.Model,
		Input:          req.Text,
		Voice:          OpenAIVoice(req.Speaker),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return "", fmt.Errorf("speech segment %d: %w", req.Index, err)
	}
	defer resp.Close()

	out := OutputPath(req.OutDir, req.Index, req.Text)
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := checkOutput(out); err != nil {
		return "", err
	}
	return out, nil
}
