package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByConversationID struct {
	ConversationID uuid.UUID
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

// Newest conversations first, oldest messages first.
var (
	ConversationsNewestFirst = OrderBy{Field: "created_at", Desc: true}
	MessagesOldestFirst      = OrderBy{Field: "created_at"}
)
