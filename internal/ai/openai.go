package ai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kozaktomas/photo-triage/internal/config"
)

const openAIModel = openai.ChatModelGPT4_1Mini

// OpenAITranslator translates queries with the OpenAI chat completions API.
type OpenAITranslator struct {
	client *openai.Client
	usageTracker
}

// NewOpenAITranslator creates a translator; pricing is per 1M tokens.
func NewOpenAITranslator(apiKey string, pricing config.RequestPricing, opts ...option.RequestOption) *OpenAITranslator {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAITranslator{
		client:       &client,
		usageTracker: usageTracker{pricing: pricing},
	}
}

func (t *OpenAITranslator) Name() string {
	return openAIModel
}

// Translate sends text with the CLIP translation prompt.
func (t *OpenAITranslator) Translate(ctx context.Context, text string) (*TranslateResult, error) {
	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openAIModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(clipTranslatePrompt),
			openai.UserMessage(text),
		},
		MaxTokens: openai.Int(100),
	})
	if err != nil {
		return &TranslateResult{Text: text}, err
	}

	result := &TranslateResult{
		Text:         text,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	t.track(result)

	if len(resp.Choices) == 0 {
		return result, nil
	}
	if translated := cleanTranslation(resp.Choices[0].Message.Content); translated != "" {
		result.Text = translated
	}
	return result, nil
}
