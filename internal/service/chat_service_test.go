package service

import (
	"context"
	"testing"
	"time"

	"ai-chatflow-be/internal/dto"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/repository/memory"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/chattest"
	"ai-chatflow-be/pkg/chat/orchestrator"
	"ai-chatflow-be/pkg/chat/session"
	"ai-chatflow-be/pkg/chat/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatService(gw *chattest.Gateway, ai *chattest.Assistant) (IChatService, *orchestrator.Orchestrator) {
	orch := orchestrator.New(gw, ai)
	sessions := session.NewManager(
		memory.NewSessionRepository(time.Hour),
		func(userId uuid.UUID) *store.Store { return store.New(userId, gw, store.WithSeeder(orch)) },
		logger.NewNopLogger(),
	)
	return NewChatService(sessions, orch), orch
}

func TestChatServiceConversationFlow(t *testing.T) {
	gw := chattest.NewGateway()
	svc, orch := newChatService(gw, &chattest.Assistant{})
	userId := uuid.New()
	ctx := context.Background()

	created, err := svc.CreateConversation(ctx, userId)
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultTitle, created.Title)
	assert.True(t, created.Active)
	require.Len(t, created.Messages, 1)

	sent, err := svc.SendMessage(ctx, userId, created.Id, &dto.SendMessageRequest{Content: "Recommend a sci-fi novel"})
	require.NoError(t, err)
	assert.Equal(t, "Recommend a sci-fi novel...", sent.Title)
	assert.True(t, sent.Placeholder.Pending)
	assert.Equal(t, "user", sent.Sent.Role)

	require.NoError(t, orch.Drain(ctx))

	opened, err := svc.OpenConversation(ctx, userId, created.Id)
	require.NoError(t, err)
	require.Len(t, opened.Messages, 3)
	assert.False(t, opened.Messages[2].Pending)
	assert.Equal(t, "reply", opened.Messages[2].Content)

	list, err := svc.ListConversations(ctx, userId)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Active)
}

func TestChatServiceExamplePrompt(t *testing.T) {
	gw := chattest.NewGateway()
	svc, orch := newChatService(gw, &chattest.Assistant{})
	userId := uuid.New()

	prompts := svc.ExamplePrompts()
	require.NotEmpty(t, prompts)

	sent, err := svc.SendExamplePrompt(context.Background(), userId, &dto.ExamplePromptRequest{Prompt: prompts[0]})
	require.NoError(t, err)
	assert.Equal(t, prompts[0], sent.Sent.Content)
	require.NoError(t, orch.Drain(context.Background()))

	assert.Len(t, gw.StoredMessages(sent.ConversationId), 2)
}
