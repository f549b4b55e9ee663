package script

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIWriter talks to any OpenAI-compatible chat endpoint; with a base URL
// it works against local servers (llama.cpp, vLLM, Ollama).
type OpenAIWriter struct {
	client *openai.Client
	Model  string
}

func NewOpenAIWriter(apiKey, baseURL, model string) *OpenAIWriter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIWriter{client: openai.NewClientWithConfig(cfg), Model: model}
}

func (w *OpenAIWriter) Generate(ctx context.Context, prompt, emotion string, n int) ([]string, error) {
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write short video narration. Answer with one part per line, no numbering, no headings.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(prompt, emotion, n),
			},
		},
		Temperature: 0.9,
		MaxTokens:   400,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return SplitSegments(resp.Choices[0].Message.Content, n), nil
}
