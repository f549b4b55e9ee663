package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrNoAPIKey = errors.New("GEMINI_API_KEY is not set")

type GeminiWriter struct {
	APIKey string
	Model  string
}

func (w *GeminiWriter) Generate(ctx context.Context, prompt, emotion string, n int) ([]string, error) {
	if w.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(w.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(w.Model)
	model.SetTemperature(0.9)
	model.SetTopP(0.95)

	resp, err := model.GenerateContent(ctx, genai.Text(BuildPrompt(prompt, emotion, n)+" Put each part on its own line."))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned, possibly blocked by safety filter")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return SplitSegments(b.String(), n), nil
}
