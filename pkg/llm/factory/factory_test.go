package factory

import (
	"testing"

	"ai-chatflow-be/pkg/llm/gemini"
	"ai-chatflow-be/pkg/llm/huggingface"
	"ai-chatflow-be/pkg/llm/ollama"
	"ai-chatflow-be/pkg/llm/openai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		want    interface{}
		wantErr bool
	}{
		{"ollama", ProviderConfig{Provider: "ollama", Model: "llama3"}, &ollama.OllamaProvider{}, false},
		{"huggingface", ProviderConfig{Provider: "huggingface", Model: "m"}, &huggingface.HuggingFaceProvider{}, false},
		{"gemini", ProviderConfig{Provider: "gemini", ApiKey: "k"}, &gemini.GeminiProvider{}, false},
		{"gemini without key", ProviderConfig{Provider: "gemini"}, nil, true},
		{"openai", ProviderConfig{Provider: "openai", ApiKey: "k"}, &openai.OpenAIProvider{}, false},
		{"unknown", ProviderConfig{Provider: "bard"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLLMProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}
