package dto

import (
	"time"

	"github.com/google/uuid"
)

type ConversationDTO struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

type MessageDTO struct {
	Id        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Pending   bool      `json:"pending"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationDetailResponse struct {
	ConversationDTO
	Messages []MessageDTO `json:"messages"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=8000"`
}

// SendMessageResponse is returned before the reply exists; it arrives over the stream.
type SendMessageResponse struct {
	ConversationId uuid.UUID  `json:"conversation_id"`
	Title          string     `json:"title"`
	Sent           MessageDTO `json:"sent"`
	Placeholder    MessageDTO `json:"placeholder"`
}

type ExamplePromptRequest struct {
	Prompt string `json:"prompt" validate:"required,max=8000"`
}

type ImproveMessageRequest struct {
	Draft string `json:"draft" validate:"required,max=8000"`
}

type ImproveMessageResponse struct {
	Improved string `json:"improved"`
}

type ActivityDTO struct {
	Type       string                 `json:"type"`
	OccurredAt string                 `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}
