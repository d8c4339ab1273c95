package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-chatflow-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:   got.Model,
			Message: ollamaMessage{Role: "assistant", Content: "pong"},
			Done:    true,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL+"/", "llama3")
	reply, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "ping"},
		{Role: llm.RoleAssistant, Content: "..."},
		{Role: llm.RoleUser, Content: "ping again"},
	}, llm.WithMaxTokens(64))

	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream)
	assert.Len(t, got.Messages, 3)
	assert.Equal(t, 64, got.Options.NumPredict)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"http error", http.StatusInternalServerError, `{"error":"model not loaded"}`},
		{"empty reply", http.StatusOK, `{"message":{"role":"assistant","content":"  "},"done":true}`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			_, err := NewOllamaProvider(server.URL, "llama3").Generate(context.Background(), "hi")
			assert.Error(t, err)
		})
	}
}
