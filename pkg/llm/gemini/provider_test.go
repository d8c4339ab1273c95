package gemini

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

func TestChatMapsRoles(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi "},{"text":"there"}]}}]}`))
	}))
	defer server.Close()

	p := NewGeminiProvider("key", server.URL, "gemini-test")
	reply, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hey"},
		{Role: llm.RoleUser, Content: "how are you"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be brief", got.SystemInstruction.Parts[0].Text)
	assert.Nil(t, got.GenerationConfig)
}

func TestChatFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"quota", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":" "}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			_, err := NewGeminiProvider("key", server.URL, "m").Generate(context.Background(), "hi", llm.WithTemperature(0.2))
			assert.Error(t, err)
		})
	}
}
