package factory

import (
	"ai-chatflow-be/pkg/llm"
	"ai-chatflow-be/pkg/llm/gemini"
	"ai-chatflow-be/pkg/llm/huggingface"
	"ai-chatflow-be/pkg/llm/ollama"
	"ai-chatflow-be/pkg/llm/openai"
	"fmt"
)

type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	ApiKey   string
}

func NewLLMProvider(cfg ProviderConfig) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(cfg.ApiKey, cfg.BaseURL, cfg.Model), nil
	case "gemini":
		if cfg.ApiKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return gemini.NewGeminiProvider(cfg.ApiKey, cfg.BaseURL, cfg.Model), nil
	case "openai":
		return openai.NewOpenAIProvider(cfg.ApiKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
