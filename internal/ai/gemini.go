package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/photo-triage/internal/config"
)

const geminiModel = "gemini-2.5-flash"

// GeminiTranslator translates queries with the Gemini API.
type GeminiTranslator struct {
	client *genai.Client
	usageTracker
}

// NewGeminiTranslator creates a translator; pricing is per 1M tokens.
func NewGeminiTranslator(ctx context.Context, apiKey string, pricing config.RequestPricing) (*GeminiTranslator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiTranslator{
		client:       client,
		usageTracker: usageTracker{pricing: pricing},
	}, nil
}

func (t *GeminiTranslator) Name() string {
	return geminiModel
}

// Translate sends text with the CLIP translation prompt.
func (t *GeminiTranslator) Translate(ctx context.Context, text string) (*TranslateResult, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: clipTranslatePrompt + "\n\nQuery: " + text}},
		},
	}

	resp, err := t.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return &TranslateResult{Text: text}, fmt.Errorf("gemini API error: %w", err)
	}

	result := &TranslateResult{Text: text}
	if resp.UsageMetadata != nil {
		result.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	t.track(result)

	translated := cleanTranslation(resp.Text())
	if translated == "" {
		return result, errors.New("no response from Gemini")
	}
	result.Text = translated
	return result, nil
}
