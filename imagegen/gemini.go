package imagegen

import (
	"bytes"
	"context"
	"errors"
	"time"

	genai "google.golang.org/genai"

	"github.com/postforge/postforge/domain"
)

const DefaultModel = "gemini-2.5-flash-image"

// ErrNoImage is returned when the model answers without image data.
var ErrNoImage = errors.New("model returned no image")

// GeminiImager generates post images with a Gemini image model.
type GeminiImager struct {
	cli   *genai.Client
	model string
	now   func() time.Time
}

func NewGeminiImager(ctx context.Context, apiKey, model string) (*GeminiImager, error) {
	if model == "" {
		model = DefaultModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiImager{cli: cli, model: model, now: time.Now}, nil
}

func (g *GeminiImager) CreateImage(ctx context.Context, d domain.Draft, prefs domain.UserPreferences) (domain.ImageArtifact, error) {
	prompt := BuildPrompt(d, prefs)
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	)
	if err != nil {
		return domain.ImageArtifact{}, err
	}
	raw := firstImage(resp)
	if raw == nil {
		return domain.ImageArtifact{}, ErrNoImage
	}
	data, err := Fit(bytes.NewReader(raw))
	if err != nil {
		return domain.ImageArtifact{}, err
	}
	return newArtifact(data, d, prompt, g.now()), nil
}

func firstImage(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data
			}
		}
	}
	return nil
}
