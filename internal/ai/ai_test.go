package ai

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/kozaktomas/photo-triage/internal/config"
)

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jiří", "Jiri"},
		{"pes na louce", "pes na louce"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := RemoveDiacritics(tt.input); got != tt.expected {
			t.Errorf("RemoveDiacritics(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  dog   on\tthe beach \n", "dog on the beach"},
		{"été", "été"},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeQuery(tt.input); got != tt.expected {
			t.Errorf("NormalizeQuery(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestNeedsTranslation(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"dog on the beach", false},
		{"sunset 2024!", false},
		{"海滩", true},
		{"婚礼 wedding", true},
		{"kůň", true},
		{"€ 100", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := NeedsTranslation(tt.input); got != tt.expected {
			t.Errorf("NeedsTranslation(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestCleanTranslation(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"beach", "beach"},
		{"  \"wedding ceremony\".\n", "wedding ceremony"},
		{"'ball'", "ball"},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := cleanTranslation(tt.input); got != tt.expected {
			t.Errorf("cleanTranslation(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestUsageTracker(t *testing.T) {
	u := usageTracker{pricing: config.RequestPricing{Input: 0.40, Output: 1.60}}

	res := &TranslateResult{InputTokens: 1_000_000, OutputTokens: 500_000}
	u.track(res)
	if math.Abs(res.Cost-1.20) > 1e-9 {
		t.Errorf("expected cost 1.20, got %v", res.Cost)
	}

	u.track(&TranslateResult{InputTokens: 10, OutputTokens: 5})
	usage := u.GetUsage()
	if usage.InputTokens != 1_000_010 || usage.OutputTokens != 500_005 {
		t.Errorf("unexpected usage totals: %+v", usage)
	}
}

func TestNewTranslator(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	tr, err := NewTranslator(ctx, cfg)
	if err != nil || tr != nil {
		t.Errorf("expected disabled translator, got %v, %v", tr, err)
	}

	cfg.Translation.Provider = "openai"
	if _, err := NewTranslator(ctx, cfg); err == nil {
		t.Error("expected error without OpenAI token")
	}

	cfg.OpenAI.Token = "sk-test"
	tr, err = NewTranslator(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Name() != openAIModel {
		t.Errorf("expected %s, got %s", openAIModel, tr.Name())
	}

	cfg.Translation.Provider = "gemini"
	if _, err := NewTranslator(ctx, cfg); err == nil {
		t.Error("expected error without Gemini key")
	}

	cfg.Translation.Provider = "mystery"
	if _, err := NewTranslator(ctx, cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOpenAITranslator_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4.1-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "\"beach\""}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 3, "total_tokens": 123}
		}`))
	}))
	defer server.Close()

	tr := NewOpenAITranslator("sk-test", config.RequestPricing{Input: 0.40, Output: 1.60},
		option.WithBaseURL(server.URL), option.WithMaxRetries(0))

	res, err := tr.Translate(context.Background(), "海滩")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "beach" {
		t.Errorf("expected 'beach', got %q", res.Text)
	}
	if res.InputTokens != 120 || res.OutputTokens != 3 {
		t.Errorf("unexpected token counts: %+v", res)
	}
	if tr.GetUsage().InputTokens != 120 {
		t.Errorf("expected usage to be tracked, got %+v", tr.GetUsage())
	}
}

func TestOpenAITranslator_ErrorKeepsOriginal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad request", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	tr := NewOpenAITranslator("sk-test", config.RequestPricing{},
		option.WithBaseURL(server.URL), option.WithMaxRetries(0))

	res, err := tr.Translate(context.Background(), "婚礼")
	if err == nil {
		t.Fatal("expected error")
	}
	if res == nil || res.Text != "婚礼" {
		t.Errorf("expected original text on error, got %+v", res)
	}
}
