package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Mickaeljc/app-bofip/internal/answer"
	"github.com/Mickaeljc/app-bofip/internal/config"
)

const (
	claudeURL     = "https://api.anthropic.com/v1/messages"
	openaiURL     = "https://api.openai.com/v1/chat/completions"
	ollamaBaseURL = "http://localhost:11434"
)

// New creates an answering engine from the given AI config. Only the
// ollama provider runs without an API key.
func New(cfg *config.AIConfig, apiKey string) (answer.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("AI not configured")
	}
	if apiKey == "" && cfg.Provider != "ollama" {
		return nil, fmt.Errorf("AI provider %q needs an API key (set ai.api_key or BOFIP_AI_KEY)", cfg.Provider)
	}

	client := &http.Client{Timeout: cfg.RequestTimeout()}

	switch cfg.Provider {
	case "claude":
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		endpoint := claudeURL
		if cfg.BaseURL != "" {
			endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages"
		}
		return &claudeProvider{apiKey: apiKey, model: model, endpoint: endpoint, client: client}, nil
	case "openai":
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		endpoint := openaiURL
		if cfg.BaseURL != "" {
			endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/v1/chat/completions"
		}
		return &openaiProvider{name: "openai", apiKey: apiKey, model: model, endpoint: endpoint, client: client}, nil
	case "ollama":
		// Ollama serves the OpenAI chat completions API.
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		base := cfg.BaseURL
		if base == "" {
			base = ollamaBaseURL
		}
		endpoint := strings.TrimRight(base, "/") + "/v1/chat/completions"
		return &openaiProvider{name: "ollama", apiKey: apiKey, model: model, endpoint: endpoint, client: client}, nil
	case "gemini":
		model := cfg.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		g, err := newGeminiProvider(apiKey, model, cfg.BaseURL, cfg.RequestTimeout())
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %q (valid: claude, openai, ollama, gemini)", cfg.Provider)
	}
}

const systemPrompt = `Tu es un assistant fiscal. Tu réponds uniquement à partir des extraits du BOFIP-Impôts fournis en contexte.
Réponds de façon brève et précise, dans la langue de la question. Si le contexte ne contient pas la réponse, dis-le clairement sans inventer.`

const questionPrompt = `Contexte :
%s

Question : %s`

func buildPrompt(question, passage string) string {
	return fmt.Sprintf(questionPrompt, passage, question)
}

// --- Claude provider ---

type claudeProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *claudeProvider) Answer(ctx context.Context, question, passage string) (string, error) {
	body, _ := json.Marshal(claudeRequest{
		Model:     c.model,
		MaxTokens: 512,
		System:    systemPrompt,
		Messages:  []claudeMessage{{Role: "user", Content: buildPrompt(question, passage)}},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("claude API %d: %s", resp.StatusCode, string(b))
	}

	var cr claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Content) == 0 {
		return "", fmt.Errorf("empty claude response")
	}
	return cr.Content[0].Text, nil
}

// --- OpenAI-compatible provider (openai, ollama) ---

type openaiProvider struct {
	name     string
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *openaiProvider) Answer(ctx context.Context, question, passage string) (string, error) {
	body, _ := json.Marshal(openaiRequest{
		Model: o.model,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(question, passage)},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", o.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%s API %d: %s", o.name, resp.StatusCode, string(b))
	}

	var or openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", err
	}
	if len(or.Choices) == 0 {
		return "", fmt.Errorf("empty %s response", o.name)
	}
	return or.Choices[0].Message.Content, nil
}
