package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/chattest"
	"ai-chatflow-be/pkg/chat/store"
	"ai-chatflow-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, event.EventType())
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type fixture struct {
	userId   uuid.UUID
	gateway  *chattest.Gateway
	notifier *chattest.Notifier
	orch     *Orchestrator
	store    *store.Store
}

func newFixture(t *testing.T, ai *chattest.Assistant, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		userId:   uuid.New(),
		gateway:  chattest.NewGateway(),
		notifier: &chattest.Notifier{},
	}
	f.orch = New(f.gateway, ai, opts...)
	f.store = store.New(f.userId, f.gateway, store.WithNotifier(f.notifier), store.WithSeeder(f.orch))
	return f
}

func (f *fixture) seed(t *testing.T, title string, turns ...chat.Turn) chat.Conversation {
	t.Helper()
	conv := f.gateway.Seed(f.userId, title, turns...)
	require.NoError(t, f.store.Load(context.Background()))
	return conv
}

func (f *fixture) messages(t *testing.T, conversationId uuid.UUID) []chat.Message {
	t.Helper()
	c, ok := f.store.Conversation(conversationId)
	require.True(t, ok)
	return c.Messages
}

func TestSubmitShowsPlaceholderThenReplacesIt(t *testing.T) {
	release := make(chan struct{})
	ai := &chattest.Assistant{
		RespondFunc: func(ctx context.Context, history []chat.Turn) (string, error) {
			<-release
			return "Try Lisbon in spring.", nil
		},
	}
	pub := &recordingPublisher{}
	f := newFixture(t, ai, WithPublisher(pub), WithModelName("test-model"))
	conv := f.seed(t, chat.DefaultTitle)

	sub, err := f.orch.Submit(context.Background(), f.store, conv.Id, "Where should I travel this year?")
	require.NoError(t, err)

	msgs := f.messages(t, conv.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, sub.UserMessage.Id, msgs[0].Id)
	assert.True(t, msgs[1].IsPending())
	assert.Equal(t, chat.PendingContent, msgs[1].Content)
	assert.Equal(t, sub.Placeholder.Id, msgs[1].Id)

	c, _ := f.store.Conversation(conv.Id)
	assert.Equal(t, "Where should I travel this yea...", c.Title)

	close(release)
	reply, err := sub.Result()
	require.NoError(t, err)
	assert.Equal(t, "Try Lisbon in spring.", reply.Content)

	msgs = f.messages(t, conv.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, reply.Id, msgs[1].Id)
	assert.False(t, msgs[1].IsPending())
	assert.Equal(t, 1, f.notifier.Count(chat.EventMessageReplaced))

	require.Len(t, ai.RespondHistory, 1)
	assert.Equal(t, []chat.Turn{{Role: chat.RoleUser, Content: "Where should I travel this year?"}}, ai.RespondHistory[0])

	stored := f.gateway.StoredMessages(conv.Id)
	require.Len(t, stored, 2)
	assert.Equal(t, chat.RoleAssistant, stored[1].Role)
	assert.Equal(t, "test-model", f.gateway.LastMetadata["model"])
	assert.Equal(t, false, f.gateway.LastMetadata["fallback"])
	assert.Equal(t, []string{EventTurnCompleted}, pub.Types())
}

func TestSubmitIncludesEarlierHistory(t *testing.T) {
	ai := &chattest.Assistant{}
	f := newFixture(t, ai)
	conv := f.seed(t, "Trip planning",
		chat.Turn{Role: chat.RoleAssistant, Content: "Where to?"},
		chat.Turn{Role: chat.RoleUser, Content: "Japan"},
	)

	sub, err := f.orch.Submit(context.Background(), f.store, conv.Id, "In autumn")
	require.NoError(t, err)
	_, err = sub.Result()
	require.NoError(t, err)

	require.Len(t, ai.RespondHistory, 1)
	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleAssistant, Content: "Where to?"},
		{Role: chat.RoleUser, Content: "Japan"},
		{Role: chat.RoleUser, Content: "In autumn"},
	}, ai.RespondHistory[0])

	c, _ := f.store.Conversation(conv.Id)
	assert.Equal(t, "Trip planning", c.Title)
	assert.Len(t, c.Messages, 4)
}

func TestSubmitProviderFailureUsesFallback(t *testing.T) {
	ai := &chattest.Assistant{
		RespondFunc: func(ctx context.Context, history []chat.Turn) (string, error) {
			return "", &chat.ProviderError{Op: "respond", Err: errors.New("quota exceeded")}
		},
	}
	pub := &recordingPublisher{}
	f := newFixture(t, ai, WithPublisher(pub))
	conv := f.seed(t, chat.DefaultTitle)

	sub, err := f.orch.Submit(context.Background(), f.store, conv.Id, "Hello")
	require.NoError(t, err)

	reply, err := sub.Result()
	var perr *chat.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, chat.AssistantFailureReply, reply.Content)

	msgs := f.messages(t, conv.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.AssistantFailureReply, msgs[1].Content)
	assert.False(t, msgs[1].IsPending())

	assert.Equal(t, 1, f.notifier.Count(chat.EventToastError))
	assert.Equal(t, true, f.gateway.LastMetadata["fallback"])
	assert.Equal(t, []string{EventTurnFailed}, pub.Types())
}

func TestSubmitTimesOutSlowProvider(t *testing.T) {
	ai := &chattest.Assistant{
		RespondFunc: func(ctx context.Context, history []chat.Turn) (string, error) {
			<-ctx.Done()
			return "", &chat.ProviderError{Op: "respond", Err: ctx.Err()}
		},
	}
	f := newFixture(t, ai, WithReplyTimeout(20*time.Millisecond))
	conv := f.seed(t, chat.DefaultTitle)

	sub, err := f.orch.Submit(context.Background(), f.store, conv.Id, "Hello")
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not finish after the reply timeout")
	}

	reply, err := sub.Result()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, chat.AssistantFailureReply, reply.Content)
}

func TestSubmitRejectsSecondTurnWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	ai := &chattest.Assistant{
		RespondFunc: func(ctx context.Context, history []chat.Turn) (string, error) {
			<-release
			return "ok", nil
		},
	}
	f := newFixture(t, ai)
	conv := f.seed(t, chat.DefaultTitle)

	first, err := f.orch.Submit(context.Background(), f.store, conv.Id, "one")
	require.NoError(t, err)

	_, err = f.orch.Submit(context.Background(), f.store, conv.Id, "two")
	assert.ErrorIs(t, err, chat.ErrTurnInFlight)

	close(release)
	_, err = first.Result()
	require.NoError(t, err)

	second, err := f.orch.Submit(context.Background(), f.store, conv.Id, "two")
	require.NoError(t, err)
	_, err = second.Result()
	require.NoError(t, err)

	assert.Len(t, f.messages(t, conv.Id), 4)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, &chattest.Assistant{})
	conv := f.seed(t, chat.DefaultTitle)

	tests := []struct {
		name           string
		conversationId uuid.UUID
		content        string
		wantErr        error
	}{
		{"empty", conv.Id, "", chat.ErrEmptyInput},
		{"whitespace", conv.Id, "  \n\t", chat.ErrEmptyInput},
		{"unknown conversation", uuid.New(), "hi", chat.ErrConversationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Submit(context.Background(), f.store, tt.conversationId, tt.content)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, f.gateway.AppendCalls)
}

func TestSubmitUserWriteFailureLeavesStoreUntouched(t *testing.T) {
	ai := &chattest.Assistant{}
	f := newFixture(t, ai)
	conv := f.seed(t, chat.DefaultTitle)
	f.gateway.AppendErr = func(turn chat.Turn) error {
		return &chat.PersistenceError{Op: "append message", Err: errors.New("connection refused")}
	}

	_, err := f.orch.Submit(context.Background(), f.store, conv.Id, "Hello")
	var perr *chat.PersistenceError
	require.ErrorAs(t, err, &perr)

	c, _ := f.store.Conversation(conv.Id)
	assert.Empty(t, c.Messages)
	assert.Equal(t, chat.DefaultTitle, c.Title)
	assert.Empty(t, ai.RespondHistory)

	// the guard was released
	f.gateway.AppendErr = nil
	sub, err := f.orch.Submit(context.Background(), f.store, conv.Id, "Hello")
	require.NoError(t, err)
	_, err = sub.Result()
	assert.NoError(t, err)
}

func TestSubmitAssistantWriteFailureRemovesPlaceholder(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, &chattest.Assistant{}, WithPublisher(pub))
	conv := f.seed(t, chat.DefaultTitle)
	f.gateway.AppendErr = func(turn chat.Turn) error {
		if turn.Role == chat.RoleAssistant {
			return &chat.PersistenceError{Op: "append message", Err: errors.New("disk full")}
		}
		return nil
	}

	sub, err := f.orch.Submit(context.Background(), f.store, conv.Id, "Hello")
	require.NoError(t, err)

	_, err = sub.Result()
	var perr *chat.PersistenceError
	require.ErrorAs(t, err, &perr)

	msgs := f.messages(t, conv.Id)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, 1, f.notifier.Count(chat.EventMessageRemoved))
	assert.Equal(t, 1, f.notifier.Count(chat.EventTurnFailed))
	assert.Equal(t, []string{EventTurnFailed}, pub.Types())
}

func TestNewChatSeedsOpeningLine(t *testing.T) {
	ai := &chattest.Assistant{
		SuggestFunc: func(ctx context.Context, topic string) (string, error) {
			return "What's on your mind today?", nil
		},
	}
	f := newFixture(t, ai)
	existing := f.seed(t, "Older chat", chat.Turn{Role: chat.RoleUser, Content: "hi"})

	conv, err := f.orch.NewChat(context.Background(), f.store)
	require.NoError(t, err)

	assert.Equal(t, chat.DefaultTitle, conv.Title)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, chat.RoleAssistant, conv.Messages[0].Role)
	assert.Equal(t, "What's on your mind today?", conv.Messages[0].Content)
	assert.Equal(t, []string{chat.DefaultTitle}, ai.SuggestedTopics)

	list := f.store.Conversations()
	require.Len(t, list, 2)
	assert.Equal(t, conv.Id, list[0].Id)
	assert.Equal(t, existing.Id, list[1].Id)

	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, conv.Id, active.Id)
	assert.Equal(t, chat.DefaultTitle, active.Title)
}

func TestSeedOpeningLineFallback(t *testing.T) {
	ai := &chattest.Assistant{
		SuggestFunc: func(ctx context.Context, topic string) (string, error) {
			return "", &chat.ProviderError{Op: "suggest opening line", Err: errors.New("offline")}
		},
	}
	f := newFixture(t, ai)

	conv, err := f.orch.NewChat(context.Background(), f.store)
	require.NoError(t, err)

	require.Len(t, conv.Messages, 1)
	assert.Equal(t, chat.OpeningLineFallback, conv.Messages[0].Content)
	assert.Equal(t, true, f.gateway.LastMetadata["fallback"])
}

func TestOpenSeedsEmptyConversationOnce(t *testing.T) {
	ai := &chattest.Assistant{}
	f := newFixture(t, ai)
	conv := f.seed(t, "Cooking ideas")

	opened, err := f.orch.Open(context.Background(), f.store, conv.Id)
	require.NoError(t, err)
	require.Len(t, opened.Messages, 1)
	assert.Equal(t, []string{"Cooking ideas"}, ai.SuggestedTopics)
	listed := f.gateway.ListMessagesCalls

	opened, err = f.orch.Open(context.Background(), f.store, conv.Id)
	require.NoError(t, err)
	assert.Len(t, opened.Messages, 1)
	assert.Len(t, ai.SuggestedTopics, 1)
	assert.Equal(t, listed, f.gateway.ListMessagesCalls)

	active, ok := f.store.Active()
	require.True(t, ok)
	assert.Equal(t, conv.Id, active.Id)
}

// stallingGateway holds the first ListMessages call after it has read the rows,
// so the caller acts on a listing that goes stale in the meantime.
type stallingGateway struct {
	*chattest.Gateway
	once   sync.Once
	listed chan struct{}
	resume chan struct{}
}

func newStallingGateway() *stallingGateway {
	return &stallingGateway{
		Gateway: chattest.NewGateway(),
		listed:  make(chan struct{}),
		resume:  make(chan struct{}),
	}
}

func (g *stallingGateway) ListMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]chat.Message, error) {
	messages, err := g.Gateway.ListMessages(ctx, userId, conversationId)
	stall := false
	g.once.Do(func() { stall = true })
	if stall {
		close(g.listed)
		<-g.resume
	}
	return messages, err
}

func TestOpenWhileSeedingWritesOneOpeningLine(t *testing.T) {
	ai := &chattest.Assistant{
		SuggestFunc: func(ctx context.Context, topic string) (string, error) {
			return "Let's plan!", nil
		},
	}
	gw := newStallingGateway()
	orch := New(gw, ai)
	userId := uuid.New()
	st := store.New(userId, gw, store.WithSeeder(orch))
	conv := gw.Seed(userId, "Plan a trip")
	require.NoError(t, st.Load(context.Background()))

	opened := make(chan error, 1)
	go func() {
		_, err := orch.Open(context.Background(), st, conv.Id)
		opened <- err
	}()

	// Open has seen an empty conversation; the new-chat seed finishes first.
	<-gw.listed
	require.NoError(t, orch.SeedOpeningLine(context.Background(), st, conv.Id))
	close(gw.resume)
	require.NoError(t, <-opened)

	c, ok := st.Conversation(conv.Id)
	require.True(t, ok)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, "Let's plan!", c.Messages[0].Content)
	assert.Len(t, gw.StoredMessages(conv.Id), 1)
	assert.Len(t, ai.SuggestedTopics, 1)
}

func TestSeedSkipsConversationSeededByAnotherSession(t *testing.T) {
	ai := &chattest.Assistant{
		SuggestFunc: func(ctx context.Context, topic string) (string, error) {
			return "Let's plan!", nil
		},
	}
	gw := newStallingGateway()
	orch := New(gw, ai)
	userId := uuid.New()
	phone := store.New(userId, gw, store.WithSeeder(orch))
	laptop := store.New(userId, gw, store.WithSeeder(orch))
	conv := gw.Seed(userId, "Plan a trip")
	require.NoError(t, phone.Load(context.Background()))
	require.NoError(t, laptop.Load(context.Background()))

	opened := make(chan error, 1)
	go func() {
		_, err := orch.Open(context.Background(), laptop, conv.Id)
		opened <- err
	}()

	<-gw.listed
	_, err := orch.Open(context.Background(), phone, conv.Id)
	require.NoError(t, err)
	close(gw.resume)
	require.NoError(t, <-opened)

	stored := gw.StoredMessages(conv.Id)
	require.Len(t, stored, 1)
	c, ok := laptop.Conversation(conv.Id)
	require.True(t, ok)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, stored[0].Id, c.Messages[0].Id)
	assert.Len(t, ai.SuggestedTopics, 1)
}

func TestOpenUnknownConversation(t *testing.T) {
	f := newFixture(t, &chattest.Assistant{})
	_, err := f.orch.Open(context.Background(), f.store, uuid.New())
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)
}

func TestSendExamplePromptTargetsNewConversation(t *testing.T) {
	ai := &chattest.Assistant{}
	pub := &recordingPublisher{}
	f := newFixture(t, ai, WithPublisher(pub))
	other := f.seed(t, "Something else", chat.Turn{Role: chat.RoleUser, Content: "hi"})
	require.NoError(t, f.store.SetActive(other.Id))

	conv, sub, err := f.orch.SendExamplePrompt(context.Background(), f.store, "Explain quantum computing in simple terms")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, conv.Id, sub.ConversationId)
	assert.Equal(t, "Explain quantum computing in s...", conv.Title)

	_, err = sub.Result()
	require.NoError(t, err)

	msgs := f.messages(t, conv.Id)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Explain quantum computing in simple terms", msgs[0].Content)
	assert.Empty(t, ai.SuggestedTopics)

	assert.Len(t, f.messages(t, other.Id), 0)
	active, _ := f.store.Active()
	assert.Equal(t, conv.Id, active.Id)
	assert.Equal(t, []string{EventConversationStarted, EventTurnCompleted}, pub.Types())
}

func TestSendExamplePromptRejectsBlank(t *testing.T) {
	f := newFixture(t, &chattest.Assistant{})
	_, _, err := f.orch.SendExamplePrompt(context.Background(), f.store, " ")
	assert.ErrorIs(t, err, chat.ErrEmptyInput)
	assert.Empty(t, f.store.Conversations())
}

func TestImprove(t *testing.T) {
	ai := &chattest.Assistant{
		ImproveFunc: func(ctx context.Context, draft string) (string, error) {
			_, hasDeadline := ctx.Deadline()
			if !hasDeadline {
				return "", errors.New("missing deadline")
			}
			return "Could you help me, please?", nil
		},
	}
	f := newFixture(t, ai)

	improved, err := f.orch.Improve(context.Background(), "help me pls")
	require.NoError(t, err)
	assert.Equal(t, "Could you help me, please?", improved)

	_, err = f.orch.Improve(context.Background(), "")
	assert.ErrorIs(t, err, chat.ErrEmptyInput)
}

func TestDrainWaitsForTurns(t *testing.T) {
	release := make(chan struct{})
	ai := &chattest.Assistant{
		RespondFunc: func(ctx context.Context, history []chat.Turn) (string, error) {
			<-release
			return "done", nil
		},
	}
	f := newFixture(t, ai)
	conv := f.seed(t, chat.DefaultTitle)

	_, err := f.orch.Submit(context.Background(), f.store, conv.Id, "Hello")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.orch.Drain(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, f.orch.Drain(context.Background()))
	assert.Len(t, f.gateway.StoredMessages(conv.Id), 2)
}
