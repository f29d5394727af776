package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

type geminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// newGeminiProvider talks to the Gemini API, or to baseURL when set.
func newGeminiProvider(apiKey, model, baseURL string, timeout time.Duration) (*geminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiProvider{client: client, model: model, timeout: timeout}, nil
}

func (g *geminiProvider) Answer(ctx context.Context, question, passage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(buildPrompt(question, passage)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty gemini response")
	}
	return text, nil
}
