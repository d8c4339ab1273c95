package entity

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Role           string
	Content        string
	Metadata       map[string]interface{} // provider details for assistant turns
	CreatedAt      time.Time
}
