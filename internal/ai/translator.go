// Package ai translates photo search queries into English for the CLIP text encoder.
package ai

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kozaktomas/photo-triage/internal/config"
)

//go:embed prompts/clip_translate.txt
var clipTranslatePrompt string

// Translator turns a search query into English text suited for CLIP.
type Translator interface {
	Name() string
	// Translate returns the translated query. On failure the result still
	// carries the original text alongside the error.
	Translate(ctx context.Context, text string) (*TranslateResult, error)
}

// TranslateResult contains the translation and usage information.
type TranslateResult struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	Cost         float64 // USD
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalCost    float64 // in USD
}

// usageTracker accumulates usage across concurrent translations.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing config.RequestPricing
}

func (u *usageTracker) track(res *TranslateResult) {
	res.Cost = float64(res.InputTokens)/1_000_000*u.pricing.Input +
		float64(res.OutputTokens)/1_000_000*u.pricing.Output

	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.InputTokens += res.InputTokens
	u.usage.OutputTokens += res.OutputTokens
	u.usage.TotalCost += res.Cost
}

// GetUsage returns a snapshot of the accumulated usage.
func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

// NewTranslator builds the translator selected by cfg.Translation.Provider.
// It returns nil and no error when translation is disabled.
func NewTranslator(ctx context.Context, cfg *config.Config) (Translator, error) {
	switch strings.ToLower(cfg.Translation.Provider) {
	case "":
		return nil, nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for openai translation")
		}
		return NewOpenAITranslator(cfg.OpenAI.Token, cfg.GetModelPricing(openAIModel).Standard), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for gemini translation")
		}
		return NewGeminiTranslator(ctx, cfg.Gemini.APIKey, cfg.GetModelPricing(geminiModel).Standard)
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.Translation.Provider)
	}
}

// cleanTranslation trims model output down to the bare query.
func cleanTranslation(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimRight(s, ".")
	return strings.TrimSpace(s)
}
