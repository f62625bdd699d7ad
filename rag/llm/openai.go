package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator answers prompts through the chat completions API of any
// OpenAI-compatible endpoint. Each call is a single blocking request; no
// dialogue state is carried between calls.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAIGenerator(client *openai.Client, model string, temperature float32) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, model: model, temperature: temperature}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}
