package gateway

import (
	"context"
	"time"

	"ai-chatflow-be/internal/entity"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/repository/specification"
	"ai-chatflow-be/internal/repository/unitofwork"
	"ai-chatflow-be/pkg/chat"

	"github.com/google/uuid"
)

// Gateway is the durable home of conversations and messages. Every call is scoped by user id.
type Gateway interface {
	ListConversations(ctx context.Context, userId uuid.UUID) ([]chat.Conversation, error)
	ListMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]chat.Message, error)
	CreateConversation(ctx context.Context, userId uuid.UUID, title string) (chat.Conversation, error)
	AppendMessage(ctx context.Context, userId, conversationId uuid.UUID, turn chat.Turn, metadata map[string]interface{}) (chat.Message, error)
	RenameConversation(ctx context.Context, userId, conversationId uuid.UUID, title string) error
}

type gormGateway struct {
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
	now        func() time.Time
}

func New(uowFactory unitofwork.RepositoryFactory, logger logger.ILogger) Gateway {
	return &gormGateway{
		uowFactory: uowFactory,
		logger:     logger,
		now:        time.Now,
	}
}

// ListConversations returns the user's conversations newest first. A user without any gets
// the welcome conversation, created together with its first message in one transaction.
func (g *gormGateway) ListConversations(ctx context.Context, userId uuid.UUID) ([]chat.Conversation, error) {
	uow := g.uowFactory.NewUnitOfWork(ctx)

	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ConversationsNewestFirst,
	)
	if err != nil {
		return nil, &chat.PersistenceError{Op: "list conversations", Err: err}
	}

	if len(conversations) > 0 {
		out := make([]chat.Conversation, 0, len(conversations))
		for _, c := range conversations {
			out = append(out, toConversation(c))
		}
		return out, nil
	}

	welcome, err := g.createWelcome(ctx, userId)
	if err != nil {
		return nil, err
	}
	return []chat.Conversation{welcome}, nil
}

func (g *gormGateway) createWelcome(ctx context.Context, userId uuid.UUID) (chat.Conversation, error) {
	uow := g.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return chat.Conversation{}, &chat.PersistenceError{Op: "create welcome conversation", Err: err}
	}
	defer uow.Rollback()

	now := g.now()
	conversation := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     chat.WelcomeTitle,
		CreatedAt: now,
	}
	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return chat.Conversation{}, &chat.PersistenceError{Op: "create welcome conversation", Err: err}
	}

	message := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversation.Id,
		Role:           string(chat.RoleAssistant),
		Content:        chat.WelcomeMessage,
		CreatedAt:      now,
	}
	if err := uow.MessageRepository().Create(ctx, message); err != nil {
		return chat.Conversation{}, &chat.PersistenceError{Op: "create welcome message", Err: err}
	}

	if err := uow.Commit(); err != nil {
		return chat.Conversation{}, &chat.PersistenceError{Op: "create welcome conversation", Err: err}
	}

	g.logger.Info("GATEWAY", "Created welcome conversation", map[string]interface{}{
		"user_id":         userId.String(),
		"conversation_id": conversation.Id.String(),
	})

	out := toConversation(conversation)
	welcome, err := toMessage(message)
	if err != nil {
		return chat.Conversation{}, &chat.PersistenceError{Op: "create welcome message", Err: err}
	}
	out.Messages = []chat.Message{welcome}
	return out, nil
}

func (g *gormGateway) ListMessages(ctx context.Context, userId, conversationId uuid.UUID) ([]chat.Message, error) {
	uow := g.uowFactory.NewUnitOfWork(ctx)

	if err := g.checkOwnership(ctx, uow, userId, conversationId); err != nil {
		return nil, err
	}

	rows, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.MessagesOldestFirst,
	)
	if err != nil {
		return nil, &chat.PersistenceError{Op: "list messages", Err: err}
	}

	messages := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		m, err := toMessage(row)
		if err != nil {
			return nil, &chat.PersistenceError{Op: "list messages", Err: err}
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (g *gormGateway) CreateConversation(ctx context.Context, userId uuid.UUID, title string) (chat.Conversation, error) {
	uow := g.uowFactory.NewUnitOfWork(ctx)

	conversation := &entity.Conversation{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     title,
		CreatedAt: g.now(),
	}
	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return chat.Conversation{}, &chat.PersistenceError{Op: "create conversation", Err: err}
	}
	return toConversation(conversation), nil
}

func (g *gormGateway) AppendMessage(ctx context.Context, userId, conversationId uuid.UUID, turn chat.Turn, metadata map[string]interface{}) (chat.Message, error) {
	uow := g.uowFactory.NewUnitOfWork(ctx)

	if err := g.checkOwnership(ctx, uow, userId, conversationId); err != nil {
		return chat.Message{}, err
	}

	message := &entity.Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		Role:           string(turn.Role),
		Content:        turn.Content,
		Metadata:       metadata,
		CreatedAt:      g.now(),
	}
	if err := uow.MessageRepository().Create(ctx, message); err != nil {
		return chat.Message{}, &chat.PersistenceError{Op: "append message", Err: err}
	}

	out, err := toMessage(message)
	if err != nil {
		return chat.Message{}, &chat.PersistenceError{Op: "append message", Err: err}
	}
	return out, nil
}

func (g *gormGateway) RenameConversation(ctx context.Context, userId, conversationId uuid.UUID, title string) error {
	uow := g.uowFactory.NewUnitOfWork(ctx)

	if err := g.checkOwnership(ctx, uow, userId, conversationId); err != nil {
		return err
	}
	if err := uow.ConversationRepository().UpdateTitle(ctx, conversationId, title); err != nil {
		return &chat.PersistenceError{Op: "rename conversation", Err: err}
	}
	return nil
}

func (g *gormGateway) checkOwnership(ctx context.Context, uow unitofwork.UnitOfWork, userId, conversationId uuid.UUID) error {
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: conversationId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return &chat.PersistenceError{Op: "find conversation", Err: err}
	}
	if conversation == nil {
		return chat.ErrConversationNotFound
	}
	return nil
}

func toConversation(c *entity.Conversation) chat.Conversation {
	return chat.Conversation{
		Id:        c.Id,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		Messages:  []chat.Message{},
	}
}

func toMessage(m *entity.Message) (chat.Message, error) {
	role, err := chat.ParseRole(m.Role)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		Id:        m.Id,
		Role:      role,
		Content:   m.Content,
		State:     chat.MessageStatePersisted,
		CreatedAt: m.CreatedAt,
	}, nil
}
