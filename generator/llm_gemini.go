package generator

import (
	"context"
	"errors"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiLLM is a thin wrapper around the official genai client.
type GeminiLLM struct {
	cli         *genai.Client
	model       string
	temperature float64
}

func NewGeminiLLM(ctx context.Context, cfg LLMSettings) (*GeminiLLM, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	// An empty key lets the client fall back to GEMINI_API_KEY.
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiLLM{cli: cli, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (g *GeminiLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	contents := make([]*genai.Content, 0, len(prompt.History)+1)
	for _, h := range prompt.History {
		role := genai.Role(genai.RoleUser)
		if h.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(h.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt.User, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if g.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.temperature))
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyCompletion
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
