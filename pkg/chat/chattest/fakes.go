// Package chattest holds in-memory doubles of the chat ports for tests.
package chattest

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-chatflow-be/pkg/chat"

	"github.com/google/uuid"
)

type storedConversation struct {
	userId       uuid.UUID
	conversation chat.Conversation
	messages     []chat.Message
}

// Gateway keeps conversations in memory and counts calls.
type Gateway struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*storedConversation
	clock         time.Time

	ListConversationsCalls int
	ListMessagesCalls      int
	AppendCalls            int
	Renames                []string
	LastMetadata           map[string]interface{}

	// Set to make the matching call fail.
	ListConversationsErr error
	ListMessagesErr      error
	CreateErr            error
	// AppendErr receives the turn and returns the error to fail with, or nil.
	AppendErr func(turn chat.Turn) error
}

func NewGateway() *Gateway {
	return &Gateway{
		conversations: make(map[uuid.UUID]*storedConversation),
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Gateway) tick() time.Time {
	g.clock = g.clock.Add(time.Second)
	return g.clock
}

// Seed stores a conversation with the given messages for userId.
func (g *Gateway) Seed(userId uuid.UUID, title string, contents ...chat.Turn) chat.Conversation {
	g.mu.Lock()
	defer g.mu.Unlock()

	conv := chat.Conversation{Id: uuid.New(), Title: title, CreatedAt: g.tick(), Messages: []chat.Message{}}
	stored := &storedConversation{userId: userId, conversation: conv}
	for _, t := range contents {
		stored.messages = append(stored.messages, chat.Message{
			Id: uuid.New(), Role: t.Role, Content: t.Content, State: chat.MessageStatePersisted, CreatedAt: g.tick(),
		})
	}
	g.conversations[conv.Id] = stored
	return conv
}

func (g *Gateway) ListConversations(ctx context.Context, userId uuid.UUID) ([]chat.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ListConversationsCalls++
	if g.ListConversationsErr != nil {
		return nil, g.ListConversationsErr
	}

	var out []chat.Conversation
	for _, c := range g.conversations {
		if c.userId == userId {
			out = append(out, c.conversation.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (g *Gateway) ListMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]chat.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ListMessagesCalls++
	if g.ListMessagesErr != nil {
		return nil, g.ListMessagesErr
	}
	c, ok := g.conversations[conversationId]
	if !ok || c.userId != userId {
		return nil, chat.ErrConversationNotFound
	}
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out, nil
}

func (g *Gateway) CreateConversation(ctx context.Context, userId uuid.UUID, title string) (chat.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.CreateErr != nil {
		return chat.Conversation{}, g.CreateErr
	}
	conv := chat.Conversation{Id: uuid.New(), Title: title, CreatedAt: g.tick(), Messages: []chat.Message{}}
	g.conversations[conv.Id] = &storedConversation{userId: userId, conversation: conv}
	return conv, nil
}

func (g *Gateway) AppendMessage(ctx context.Context, userId, conversationId uuid.UUID, turn chat.Turn, metadata map[string]interface{}) (chat.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.AppendCalls++
	if g.AppendErr != nil {
		if err := g.AppendErr(turn); err != nil {
			return chat.Message{}, err
		}
	}
	c, ok := g.conversations[conversationId]
	if !ok || c.userId != userId {
		return chat.Message{}, chat.ErrConversationNotFound
	}
	msg := chat.Message{
		Id: uuid.New(), Role: turn.Role, Content: turn.Content, State: chat.MessageStatePersisted, CreatedAt: g.tick(),
	}
	c.messages = append(c.messages, msg)
	g.LastMetadata = metadata
	return msg, nil
}

func (g *Gateway) RenameConversation(ctx context.Context, userId, conversationId uuid.UUID, title string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.conversations[conversationId]
	if !ok || c.userId != userId {
		return chat.ErrConversationNotFound
	}
	c.conversation.Title = title
	g.Renames = append(g.Renames, title)
	return nil
}

// StoredMessages returns what the gateway holds for a conversation.
func (g *Gateway) StoredMessages(conversationId uuid.UUID) []chat.Message {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.conversations[conversationId]
	if !ok {
		return nil
	}
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Assistant answers with the configured functions.
type Assistant struct {
	RespondFunc     func(ctx context.Context, history []chat.Turn) (string, error)
	SuggestFunc     func(ctx context.Context, topic string) (string, error)
	ImproveFunc     func(ctx context.Context, draft string) (string, error)
	mu              sync.Mutex
	RespondHistory  [][]chat.Turn
	SuggestedTopics []string
}

func (a *Assistant) Respond(ctx context.Context, history []chat.Turn) (string, error) {
	a.mu.Lock()
	a.RespondHistory = append(a.RespondHistory, history)
	a.mu.Unlock()
	if a.RespondFunc == nil {
		return "reply", nil
	}
	return a.RespondFunc(ctx, history)
}

func (a *Assistant) SuggestOpeningLine(ctx context.Context, topic string) (string, error) {
	a.mu.Lock()
	a.SuggestedTopics = append(a.SuggestedTopics, topic)
	a.mu.Unlock()
	if a.SuggestFunc == nil {
		return "What would you like to talk about?", nil
	}
	return a.SuggestFunc(ctx, topic)
}

func (a *Assistant) Improve(ctx context.Context, draft string) (string, error) {
	if a.ImproveFunc == nil {
		return draft, nil
	}
	return a.ImproveFunc(ctx, draft)
}

// Notifier records every event it receives.
type Notifier struct {
	mu     sync.Mutex
	events []chat.Event
}

func (n *Notifier) Notify(userId uuid.UUID, event chat.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *Notifier) Events() []chat.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]chat.Event, len(n.events))
	copy(out, n.events)
	return out
}

// Count returns how many events of eventType were received.
func (n *Notifier) Count(eventType string) int {
	count := 0
	for _, e := range n.Events() {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// TitleSink records requested renames.
type TitleSink struct {
	mu      sync.Mutex
	renames []string
}

func (t *TitleSink) RenameAsync(ctx context.Context, userId, conversationId uuid.UUID, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renames = append(t.renames, title)
}

func (t *TitleSink) Renames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.renames))
	copy(out, t.renames)
	return out
}
