package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-chatflow-be/internal/constant"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/llm"
)

// Provider produces assistant text. Every failure is a *chat.ProviderError.
type Provider interface {
	Respond(ctx context.Context, history []chat.Turn) (string, error)
	SuggestOpeningLine(ctx context.Context, topic string) (string, error)
	Improve(ctx context.Context, draft string) (string, error)
}

type llmAssistant struct {
	llm    llm.LLMProvider
	logger logger.ILogger
}

func New(provider llm.LLMProvider, logger logger.ILogger) Provider {
	return &llmAssistant{llm: provider, logger: logger}
}

func (a *llmAssistant) Respond(ctx context.Context, history []chat.Turn) (string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: constant.ChatAssistantSystemPromptV1})
	for _, turn := range history {
		role, err := providerRole(turn.Role)
		if err != nil {
			return "", &chat.ProviderError{Op: "respond", Err: err}
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}

	reply, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return "", &chat.ProviderError{Op: "respond", Err: err}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &chat.ProviderError{Op: "respond", Err: llm.ErrEmptyCompletion}
	}
	return reply, nil
}

func (a *llmAssistant) SuggestOpeningLine(ctx context.Context, topic string) (string, error) {
	raw, err := a.llm.Generate(ctx, fmt.Sprintf(constant.OpeningLinePromptV1, topic), llm.WithTemperature(0.9))
	if err != nil {
		return "", &chat.ProviderError{Op: "suggest opening line", Err: err}
	}

	var out struct {
		SuggestedMessage string `json:"suggested_message"`
	}
	line := decodeField(raw, &out, func() string { return out.SuggestedMessage })
	if line == "" {
		return "", &chat.ProviderError{Op: "suggest opening line", Err: llm.ErrEmptyCompletion}
	}
	return line, nil
}

func (a *llmAssistant) Improve(ctx context.Context, draft string) (string, error) {
	raw, err := a.llm.Generate(ctx, fmt.Sprintf(constant.ImproveMessagePromptV1, draft), llm.WithTemperature(0.3))
	if err != nil {
		return "", &chat.ProviderError{Op: "improve", Err: err}
	}

	var out struct {
		ImprovedMessage string `json:"improved_message"`
	}
	improved := decodeField(raw, &out, func() string { return out.ImprovedMessage })
	if improved == "" {
		return "", &chat.ProviderError{Op: "improve", Err: llm.ErrEmptyCompletion}
	}
	return improved, nil
}

func providerRole(role chat.Role) (string, error) {
	switch role {
	case chat.RoleUser:
		return llm.RoleUser, nil
	case chat.RoleAssistant:
		return llm.RoleAssistant, nil
	default:
		return "", fmt.Errorf("unhandled chat role %q", role)
	}
}

// decodeField reads a single-field JSON reply, tolerating markdown fences.
// Models that ignore the format instruction get their plain text used as is.
func decodeField(raw string, target interface{}, field func() string) string {
	b := bytes.TrimSpace([]byte(raw))
	b = bytes.TrimPrefix(b, []byte("```json"))
	b = bytes.TrimPrefix(b, []byte("```"))
	b = bytes.TrimSuffix(b, []byte("```"))
	b = bytes.TrimSpace(b)

	if err := json.Unmarshal(b, target); err == nil {
		return strings.TrimSpace(field())
	}
	return strings.Trim(strings.TrimSpace(string(b)), `"`)
}
