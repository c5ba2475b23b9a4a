package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-triage/internal/config"
	"github.com/kozaktomas/photo-triage/internal/processing"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config    *config.Config
	opts      processing.Options
	detectors []string
}

// NewConfigHandler creates a new config handler. opts are the orchestrator's
// effective options, which may differ from cfg after CLI overrides.
func NewConfigHandler(cfg *config.Config, opts processing.Options, detectors []string) *ConfigHandler {
	return &ConfigHandler{
		config:    cfg,
		opts:      opts,
		detectors: detectors,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	BlurThreshold          float64        `json:"blur_threshold"`
	OverexposureThreshold  float64        `json:"overexposure_threshold"`
	UnderexposureThreshold float64        `json:"underexposure_threshold"`
	Detectors              []string       `json:"detectors"`
	MaxWorkers             int            `json:"max_workers"`
	BatchSize              int            `json:"batch_size"`
	SearchLimit            int            `json:"search_limit"`
	EmbeddingModel         string         `json:"embedding_model"`
	Providers              []ProviderInfo `json:"providers"`
	TranslationProvider    string         `json:"translation_provider,omitempty"`
	PersistentIndex        bool           `json:"persistent_index"`
}

// ProviderInfo represents information about a translation provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Get returns the active configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{
			Name:      "openai",
			Available: h.config.OpenAI.Token != "",
		},
		{
			Name:      "gemini",
			Available: h.config.Gemini.APIKey != "",
		},
	}

	response := ConfigResponse{
		BlurThreshold:          h.config.Quality.BlurThreshold,
		OverexposureThreshold:  h.config.Quality.OverexposureThreshold,
		UnderexposureThreshold: h.config.Quality.UnderexposureThreshold,
		Detectors:              h.detectors,
		MaxWorkers:             h.opts.MaxWorkers,
		BatchSize:              h.opts.BatchSize,
		SearchLimit:            h.opts.SearchLimit,
		EmbeddingModel:         h.config.Embedding.Model,
		Providers:              providers,
		TranslationProvider:    h.config.Translation.Provider,
		PersistentIndex:        h.config.Database.URL != "" || h.config.Database.HNSWEmbeddingIndexPath != "",
	}

	respondJSON(w, http.StatusOK, response)
}
