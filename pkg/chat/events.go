package chat

import "github.com/google/uuid"

const (
	EventConversationsLoaded = "conversations.loaded"
	EventConversationCreated = "conversation.created"
	EventConversationActive  = "conversation.activated"
	EventConversationRenamed = "conversation.renamed"
	EventMessagesLoaded      = "messages.loaded"
	EventMessageAppended     = "message.appended"
	EventMessageReplaced     = "message.replaced"
	EventMessageRemoved      = "message.removed"
	EventToastError          = "toast.error"
	EventTurnFailed          = "turn.failed"
)

// Event is a change pushed to the user's open clients.
type Event struct {
	Type           string      `json:"type"`
	ConversationId *uuid.UUID  `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Notifier delivers events to a user's connected clients.
type Notifier interface {
	Notify(userId uuid.UUID, event Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(uuid.UUID, Event) {}
