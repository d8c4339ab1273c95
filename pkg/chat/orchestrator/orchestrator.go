package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/assistant"
	"ai-chatflow-be/pkg/chat/gateway"
	"ai-chatflow-be/pkg/chat/store"
	"ai-chatflow-be/pkg/events"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultReplyTimeout = 45 * time.Second

// Domain events published on the event bus.
const (
	EventTurnCompleted       = "TURN_COMPLETED"
	EventTurnFailed          = "TURN_FAILED"
	EventConversationStarted = "CONVERSATION_STARTED"
)

// Orchestrator runs a conversation turn: persist the user message, show a placeholder,
// ask the assistant in the background and swap the placeholder for the stored reply.
type Orchestrator struct {
	gateway   gateway.Gateway
	assistant assistant.Provider
	publisher events.Publisher
	logger    logger.ILogger
	tracer    trace.Tracer
	timeout   time.Duration
	model     string
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

type Option func(*Orchestrator)

func WithPublisher(p events.Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

func WithLogger(l logger.ILogger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithReplyTimeout bounds every assistant call. Non-positive values keep the default.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithModelName is recorded in the metadata of assistant messages.
func WithModelName(name string) Option { return func(o *Orchestrator) { o.model = name } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(gw gateway.Gateway, ai assistant.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:   gw,
		assistant: ai,
		logger:    logger.NewNopLogger(),
		tracer:    otel.Tracer("ai-chatflow-be/orchestrator"),
		timeout:   DefaultReplyTimeout,
		now:       time.Now,
		inFlight:  make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submission is a turn whose user message and placeholder are already in the store.
type Submission struct {
	ConversationId uuid.UUID
	UserMessage    chat.Message
	Placeholder    chat.Message

	done  chan struct{}
	reply chat.Message
	err   error
}

// Done is closed once the placeholder has been reconciled or removed.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Result blocks until Done. reply is the persisted assistant message, possibly the fallback
// text; err reports the provider or persistence failure behind it.
func (s *Submission) Result() (chat.Message, error) {
	<-s.done
	return s.reply, s.err
}

// Submit persists a user message and starts the assistant reply.
// It returns as soon as the placeholder is visible in the store.
func (o *Orchestrator) Submit(ctx context.Context, st *store.Store, conversationId uuid.UUID, content string) (*Submission, error) {
	if strings.TrimSpace(content) == "" {
		return nil, chat.ErrEmptyInput
	}
	if _, ok := st.Conversation(conversationId); !ok {
		return nil, chat.ErrConversationNotFound
	}
	if !o.acquire(conversationId) {
		return nil, chat.ErrTurnInFlight
	}

	// History must be in the cache before the local append marks the conversation as loaded.
	if err := st.PrefetchMessages(ctx, conversationId); err != nil {
		o.release(conversationId)
		return nil, err
	}

	userMessage, err := o.gateway.AppendMessage(ctx, st.UserId(), conversationId, chat.Turn{Role: chat.RoleUser, Content: content}, nil)
	if err != nil {
		o.release(conversationId)
		o.logger.Error("ORCHESTRATOR", "Failed to persist user message", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
		return nil, err
	}
	if err := st.AppendMessage(ctx, conversationId, userMessage); err != nil {
		o.release(conversationId)
		return nil, err
	}

	placeholder := chat.NewPlaceholder(o.now())
	if err := st.AppendMessage(ctx, conversationId, placeholder); err != nil {
		o.release(conversationId)
		return nil, err
	}

	sub := &Submission{
		ConversationId: conversationId,
		UserMessage:    userMessage,
		Placeholder:    placeholder,
		done:           make(chan struct{}),
	}

	o.wg.Add(1)
	go o.complete(context.WithoutCancel(ctx), st, sub)

	return sub, nil
}

func (o *Orchestrator) complete(ctx context.Context, st *store.Store, sub *Submission) {
	defer o.wg.Done()
	defer close(sub.done)
	defer o.release(sub.ConversationId)

	ctx, span := o.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("conversation.id", sub.ConversationId.String()),
	))
	defer span.End()

	started := o.now()
	history := st.History(sub.ConversationId)

	inferCtx, cancel := context.WithTimeout(ctx, o.timeout)
	reply, providerErr := o.assistant.Respond(inferCtx, history)
	cancel()

	latency := o.now().Sub(started)
	fallback := providerErr != nil
	if fallback {
		reply = chat.AssistantFailureReply
		span.RecordError(providerErr)
		o.logger.Error("ORCHESTRATOR", "Assistant reply failed, using fallback", map[string]interface{}{
			"conversation_id": sub.ConversationId.String(),
			"error":           providerErr.Error(),
		})
		st.Notify(chat.Event{
			Type:           chat.EventToastError,
			ConversationId: &sub.ConversationId,
			Data:           chat.Toast{Title: "Error", Description: "Failed to get AI response"},
		})
	}

	metadata := map[string]interface{}{
		"model":      o.model,
		"fallback":   fallback,
		"latency_ms": latency.Milliseconds(),
	}
	persisted, err := o.gateway.AppendMessage(ctx, st.UserId(), sub.ConversationId, chat.Turn{Role: chat.RoleAssistant, Content: reply}, metadata)
	if err != nil {
		span.SetStatus(codes.Error, "persist assistant message")
		o.logger.Error("ORCHESTRATOR", "Failed to persist assistant message", map[string]interface{}{
			"conversation_id": sub.ConversationId.String(),
			"error":           err.Error(),
		})
		st.RemoveMessage(sub.ConversationId, sub.Placeholder.Id)
		st.Notify(chat.Event{
			Type:           chat.EventTurnFailed,
			ConversationId: &sub.ConversationId,
			Data:           chat.Toast{Title: "Error", Description: "The reply could not be saved. Please try again."},
		})
		o.publish(ctx, EventTurnFailed, map[string]interface{}{
			"user_id":         st.UserId().String(),
			"conversation_id": sub.ConversationId.String(),
			"reason":          err.Error(),
		})
		sub.err = err
		return
	}

	st.ReplaceMessage(sub.ConversationId, sub.Placeholder.Id, persisted)
	sub.reply = persisted

	if fallback {
		span.SetStatus(codes.Error, "assistant reply")
		sub.err = providerErr
		o.publish(ctx, EventTurnFailed, map[string]interface{}{
			"user_id":         st.UserId().String(),
			"conversation_id": sub.ConversationId.String(),
			"reason":          providerErr.Error(),
		})
		return
	}

	o.publish(ctx, EventTurnCompleted, map[string]interface{}{
		"user_id":         st.UserId().String(),
		"conversation_id": sub.ConversationId.String(),
		"latency_ms":      latency.Milliseconds(),
	})
}

// SeedOpeningLine writes a generated first message into an empty conversation.
// A failed generation is replaced by a fixed line; a failed write is returned.
func (o *Orchestrator) SeedOpeningLine(ctx context.Context, st *store.Store, conversationId uuid.UUID) error {
	conversation, ok := st.Conversation(conversationId)
	if !ok {
		return chat.ErrConversationNotFound
	}
	// A turn already running fills the conversation on its own.
	if !o.acquire(conversationId) {
		return nil
	}
	defer o.release(conversationId)

	// The caller decided to seed from a listing taken before the guard; another seed may have
	// landed since, in this store or in another session's.
	if c, ok := st.Conversation(conversationId); ok && len(c.Messages) > 0 {
		return nil
	}
	existing, err := o.gateway.ListMessages(ctx, st.UserId(), conversationId)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		for _, m := range existing {
			if err := st.AppendMessage(ctx, conversationId, m); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, span := o.tracer.Start(ctx, "chat.seed", trace.WithAttributes(
		attribute.String("conversation.id", conversationId.String()),
	))
	defer span.End()

	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	line, err := o.assistant.SuggestOpeningLine(genCtx, conversation.Title)
	cancel()

	fallback := err != nil
	if fallback {
		span.RecordError(err)
		o.logger.Warn("ORCHESTRATOR", "Opening line generation failed, using fallback", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
		line = chat.OpeningLineFallback
	}

	message, err := o.gateway.AppendMessage(ctx, st.UserId(), conversationId, chat.Turn{Role: chat.RoleAssistant, Content: line}, map[string]interface{}{
		"model":        o.model,
		"fallback":     fallback,
		"opening_line": true,
	})
	if err != nil {
		span.SetStatus(codes.Error, "persist opening line")
		return err
	}
	return st.AppendMessage(ctx, conversationId, message)
}

// NewChat creates a "New Chat" conversation, makes it active and seeds its opening line.
// A failed seed is pushed to the client and logged; the conversation is still returned.
func (o *Orchestrator) NewChat(ctx context.Context, st *store.Store) (chat.Conversation, error) {
	conversation, err := o.start(ctx, st)
	if err != nil {
		return chat.Conversation{}, err
	}

	if err := o.SeedOpeningLine(ctx, st, conversation.Id); err != nil {
		o.logger.Error("ORCHESTRATOR", "Failed to seed new conversation", map[string]interface{}{
			"conversation_id": conversation.Id.String(),
			"error":           err.Error(),
		})
		st.Notify(chat.Event{
			Type:           chat.EventToastError,
			ConversationId: &conversation.Id,
			Data:           chat.Toast{Title: "Error", Description: "Failed to start the conversation"},
		})
	}

	if c, ok := st.Conversation(conversation.Id); ok {
		return c, nil
	}
	return conversation, nil
}

// Open activates a conversation and loads its messages on first visit.
func (o *Orchestrator) Open(ctx context.Context, st *store.Store, conversationId uuid.UUID) (chat.Conversation, error) {
	if err := st.SetActive(conversationId); err != nil {
		return chat.Conversation{}, err
	}
	if err := st.LoadMessagesIfEmpty(ctx, conversationId); err != nil {
		return chat.Conversation{}, err
	}
	conversation, ok := st.Conversation(conversationId)
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return conversation, nil
}

// SendExamplePrompt starts a fresh conversation and submits prompt to it.
// The new conversation id is handed to Submit directly; nothing reads it back from the active slot.
func (o *Orchestrator) SendExamplePrompt(ctx context.Context, st *store.Store, prompt string) (chat.Conversation, *Submission, error) {
	if strings.TrimSpace(prompt) == "" {
		return chat.Conversation{}, nil, chat.ErrEmptyInput
	}

	conversation, err := o.start(ctx, st)
	if err != nil {
		return chat.Conversation{}, nil, err
	}

	sub, err := o.Submit(ctx, st, conversation.Id, prompt)
	if err != nil {
		return conversation, nil, err
	}

	if c, ok := st.Conversation(conversation.Id); ok {
		conversation = c
	}
	return conversation, sub, nil
}

// Improve rewrites a draft before it is sent.
func (o *Orchestrator) Improve(ctx context.Context, draft string) (string, error) {
	if strings.TrimSpace(draft) == "" {
		return "", chat.ErrEmptyInput
	}

	ctx, span := o.tracer.Start(ctx, "chat.improve")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	improved, err := o.assistant.Improve(ctx, draft)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return improved, nil
}

// Drain waits for background turns to finish or ctx to end.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) start(ctx context.Context, st *store.Store) (chat.Conversation, error) {
	conversation, err := o.gateway.CreateConversation(ctx, st.UserId(), chat.DefaultTitle)
	if err != nil {
		return chat.Conversation{}, err
	}

	st.Prepend(conversation)
	if err := st.SetActive(conversation.Id); err != nil {
		return chat.Conversation{}, err
	}

	o.publish(ctx, EventConversationStarted, map[string]interface{}{
		"user_id":         st.UserId().String(),
		"conversation_id": conversation.Id.String(),
	})
	return conversation, nil
}

func (o *Orchestrator) acquire(conversationId uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inFlight[conversationId]; busy {
		return false
	}
	o.inFlight[conversationId] = struct{}{}
	return true
}

func (o *Orchestrator) release(conversationId uuid.UUID) {
	o.mu.Lock()
	delete(o.inFlight, conversationId)
	o.mu.Unlock()
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if o.publisher == nil {
		return
	}
	event := events.BaseEvent{Type: eventType, Data: data, OccurredAt: o.now()}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn("ORCHESTRATOR", "Failed to publish domain event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}
