package store

import (
	"context"
	"sync"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/gateway"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Seeder writes the first message of a conversation that turned out to be empty.
type Seeder interface {
	SeedOpeningLine(ctx context.Context, s *Store, conversationId uuid.UUID) error
}

// TitleSink persists a derived title without making the caller wait.
type TitleSink interface {
	RenameAsync(ctx context.Context, userId, conversationId uuid.UUID, title string)
}

// Store is the in-memory view of one user's conversations. Reads return copies.
type Store struct {
	userId uuid.UUID

	mu            sync.RWMutex
	conversations []*chat.Conversation
	active        uuid.NullUUID

	loads singleflight.Group

	gateway  gateway.Gateway
	notifier chat.Notifier
	titles   TitleSink
	seeder   Seeder
	logger   logger.ILogger
}

type Option func(*Store)

func WithNotifier(n chat.Notifier) Option { return func(s *Store) { s.notifier = n } }

func WithTitleSink(t TitleSink) Option { return func(s *Store) { s.titles = t } }

func WithSeeder(sd Seeder) Option { return func(s *Store) { s.seeder = sd } }

func WithLogger(l logger.ILogger) Option { return func(s *Store) { s.logger = l } }

func New(userId uuid.UUID, gw gateway.Gateway, opts ...Option) *Store {
	s := &Store{
		userId:        userId,
		conversations: []*chat.Conversation{},
		gateway:       gw,
		notifier:      chat.NopNotifier{},
		logger:        logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) UserId() uuid.UUID {
	return s.userId
}

// Load replaces the cached list with the gateway's. On failure the cache keeps its prior state.
func (s *Store) Load(ctx context.Context) error {
	fetched, err := s.gateway.ListConversations(ctx, s.userId)
	if err != nil {
		return err
	}

	list := make([]*chat.Conversation, 0, len(fetched))
	for i := range fetched {
		c := fetched[i].Clone()
		list = append(list, &c)
	}

	s.mu.Lock()
	s.conversations = list
	if s.active.Valid && s.find(s.active.UUID) == nil {
		s.active = uuid.NullUUID{}
	}
	snapshot := s.summariesLocked()
	s.mu.Unlock()

	s.notify(chat.Event{Type: chat.EventConversationsLoaded, Data: snapshot})
	return nil
}

// LoadMessagesIfEmpty fetches a conversation's messages unless it already holds some.
// An empty result hands the conversation to the seeder.
func (s *Store) LoadMessagesIfEmpty(ctx context.Context, conversationId uuid.UUID) error {
	return s.loadMessages(ctx, conversationId, true)
}

// PrefetchMessages is LoadMessagesIfEmpty without seeding.
func (s *Store) PrefetchMessages(ctx context.Context, conversationId uuid.UUID) error {
	return s.loadMessages(ctx, conversationId, false)
}

func (s *Store) loadMessages(ctx context.Context, conversationId uuid.UUID, seed bool) error {
	s.mu.RLock()
	c := s.find(conversationId)
	if c == nil {
		s.mu.RUnlock()
		return chat.ErrConversationNotFound
	}
	loaded := len(c.Messages) > 0
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	// Concurrent loads of one conversation share a single fetch.
	_, err, _ := s.loads.Do(conversationId.String(), func() (interface{}, error) {
		return nil, s.fetchAndSplice(ctx, conversationId, seed)
	})
	return err
}

func (s *Store) fetchAndSplice(ctx context.Context, conversationId uuid.UUID, seed bool) error {
	s.mu.RLock()
	c := s.find(conversationId)
	alreadyLoaded := c != nil && len(c.Messages) > 0
	s.mu.RUnlock()
	if c == nil {
		return chat.ErrConversationNotFound
	}
	if alreadyLoaded {
		return nil
	}

	fetched, err := s.gateway.ListMessages(ctx, s.userId, conversationId)
	if err != nil {
		return err
	}

	if len(fetched) == 0 {
		if seed && s.seeder != nil {
			return s.seeder.SeedOpeningLine(ctx, s, conversationId)
		}
		return nil
	}

	s.mu.Lock()
	c = s.find(conversationId)
	if c == nil {
		s.mu.Unlock()
		return chat.ErrConversationNotFound
	}
	// Anything appended while the fetch was in flight stays behind the fetched history.
	seen := make(map[uuid.UUID]struct{}, len(fetched))
	merged := make([]chat.Message, 0, len(fetched)+len(c.Messages))
	for _, m := range fetched {
		seen[m.Id] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range c.Messages {
		if _, dup := seen[m.Id]; !dup {
			merged = append(merged, m)
		}
	}
	c.Messages = merged
	out := copyMessages(merged)
	s.mu.Unlock()

	s.notify(chat.Event{Type: chat.EventMessagesLoaded, ConversationId: &conversationId, Data: out})
	return nil
}

// Prepend puts a freshly created conversation at the head of the list.
func (s *Store) Prepend(conversation chat.Conversation) {
	c := conversation.Clone()

	s.mu.Lock()
	if s.find(c.Id) != nil {
		s.mu.Unlock()
		return
	}
	s.conversations = append([]*chat.Conversation{&c}, s.conversations...)
	s.mu.Unlock()

	s.notify(chat.Event{Type: chat.EventConversationCreated, ConversationId: &c.Id, Data: c})
}

func (s *Store) SetActive(conversationId uuid.UUID) error {
	s.mu.Lock()
	if s.find(conversationId) == nil {
		s.mu.Unlock()
		return chat.ErrConversationNotFound
	}
	s.active = uuid.NullUUID{UUID: conversationId, Valid: true}
	s.mu.Unlock()

	s.notify(chat.Event{Type: chat.EventConversationActive, ConversationId: &conversationId})
	return nil
}

func (s *Store) Active() (chat.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active.Valid {
		return chat.Conversation{}, false
	}
	c := s.find(s.active.UUID)
	if c == nil {
		return chat.Conversation{}, false
	}
	return c.Clone(), true
}

func (s *Store) Conversation(conversationId uuid.UUID) (chat.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.find(conversationId)
	if c == nil {
		return chat.Conversation{}, false
	}
	return c.Clone(), true
}

func (s *Store) Conversations() []chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	return out
}

// AppendMessage adds a message at the tail. Ids already present are ignored.
// The first user message replaces the default title, once.
func (s *Store) AppendMessage(ctx context.Context, conversationId uuid.UUID, message chat.Message) error {
	s.mu.Lock()
	c := s.find(conversationId)
	if c == nil {
		s.mu.Unlock()
		return chat.ErrConversationNotFound
	}
	for _, m := range c.Messages {
		if m.Id == message.Id {
			s.mu.Unlock()
			return nil
		}
	}
	c.Messages = append(c.Messages, message)

	var newTitle string
	if message.Role == chat.RoleUser && c.HasDefaultTitle() {
		newTitle = chat.DeriveTitle(message.Content)
		c.Title = newTitle
	}
	s.mu.Unlock()

	s.notify(chat.Event{Type: chat.EventMessageAppended, ConversationId: &conversationId, Data: message})

	if newTitle != "" {
		s.notify(chat.Event{Type: chat.EventConversationRenamed, ConversationId: &conversationId, Data: newTitle})
		if s.titles != nil {
			s.titles.RenameAsync(ctx, s.userId, conversationId, newTitle)
		}
	}
	return nil
}

// ReplaceMessage swaps the message with oldId for message at the same index.
// Returns false when oldId isn't there.
func (s *Store) ReplaceMessage(conversationId, oldId uuid.UUID, message chat.Message) bool {
	s.mu.Lock()
	c := s.find(conversationId)
	if c == nil {
		s.mu.Unlock()
		return false
	}
	idx := indexOf(c.Messages, oldId)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	c.Messages[idx] = message
	s.mu.Unlock()

	s.notify(chat.Event{
		Type:           chat.EventMessageReplaced,
		ConversationId: &conversationId,
		Data:           map[string]interface{}{"old_id": oldId, "message": message},
	})
	return true
}

// RemoveMessage drops a message that never got a backing record.
func (s *Store) RemoveMessage(conversationId, id uuid.UUID) bool {
	s.mu.Lock()
	c := s.find(conversationId)
	if c == nil {
		s.mu.Unlock()
		return false
	}
	idx := indexOf(c.Messages, id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	s.mu.Unlock()

	s.notify(chat.Event{Type: chat.EventMessageRemoved, ConversationId: &conversationId, Data: id})
	return true
}

// History is the ordered role/content list of persisted messages, as sent to the assistant.
func (s *Store) History(conversationId uuid.UUID) []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.find(conversationId)
	if c == nil {
		return nil
	}
	history := make([]chat.Turn, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.IsPending() {
			continue
		}
		history = append(history, chat.Turn{Role: m.Role, Content: m.Content})
	}
	return history
}

func (s *Store) find(conversationId uuid.UUID) *chat.Conversation {
	for _, c := range s.conversations {
		if c.Id == conversationId {
			return c
		}
	}
	return nil
}

func (s *Store) summariesLocked() []chat.Conversation {
	out := make([]chat.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, chat.Conversation{Id: c.Id, Title: c.Title, CreatedAt: c.CreatedAt})
	}
	return out
}

// Notify pushes an event that isn't a cache mutation, such as a toast, to the session's clients.
func (s *Store) Notify(event chat.Event) {
	s.notify(event)
}

func (s *Store) notify(event chat.Event) {
	s.notifier.Notify(s.userId, event)
}

func indexOf(messages []chat.Message, id uuid.UUID) int {
	for i, m := range messages {
		if m.Id == id {
			return i
		}
	}
	return -1
}

func copyMessages(in []chat.Message) []chat.Message {
	out := make([]chat.Message, len(in))
	copy(out, in)
	return out
}
