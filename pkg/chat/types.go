package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTitle          = "New Chat"
	PendingContent        = "..."
	TitleEllipsis         = "..."
	TitleMaxRunes         = 30
	AssistantFailureReply = "An error occurred. Please try again."
	OpeningLineFallback   = "I couldn't think of a good starter... what's on your mind?"
	WelcomeTitle          = "Welcome to ChatFlow"
	WelcomeMessage        = "Hello! I'm ChatFlow, your intelligent chat companion. How can I assist you today?"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown message role %q", s)
	}
}

// MessageState separates placeholders that only live in memory from rows the gateway issued.
type MessageState string

const (
	MessageStatePending   MessageState = "pending"
	MessageStatePersisted MessageState = "persisted"
)

type Message struct {
	Id        uuid.UUID    `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	State     MessageState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewPlaceholder builds the pending assistant message shown while a reply is generated.
func NewPlaceholder(now time.Time) Message {
	return Message{
		Id:        uuid.New(),
		Role:      RoleAssistant,
		Content:   PendingContent,
		State:     MessageStatePending,
		CreatedAt: now,
	}
}

func (m Message) IsPending() bool {
	return m.State == MessageStatePending
}

type Conversation struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

func (c Conversation) HasDefaultTitle() bool {
	return c.Title == DefaultTitle
}

// Clone copies the message slice so callers can't mutate shared state.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// Turn is one entry of the history sent to the assistant.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Identity struct {
	Id          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Email       string    `json:"email,omitempty"`
}

// DeriveTitle turns the first user message into a conversation title.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) > TitleMaxRunes {
		runes = runes[:TitleMaxRunes]
	}
	return string(runes) + TitleEllipsis
}
