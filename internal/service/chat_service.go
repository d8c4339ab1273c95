package service

import (
	"context"

	"ai-chatflow-be/internal/constant"
	"ai-chatflow-be/internal/dto"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/orchestrator"
	"ai-chatflow-be/pkg/chat/session"

	"github.com/google/uuid"
)

type IChatService interface {
	ListConversations(ctx context.Context, userId uuid.UUID) ([]dto.ConversationDTO, error)
	CreateConversation(ctx context.Context, userId uuid.UUID) (*dto.ConversationDetailResponse, error)
	OpenConversation(ctx context.Context, userId, conversationId uuid.UUID) (*dto.ConversationDetailResponse, error)
	SendMessage(ctx context.Context, userId, conversationId uuid.UUID, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error)
	SendExamplePrompt(ctx context.Context, userId uuid.UUID, req *dto.ExamplePromptRequest) (*dto.SendMessageResponse, error)
	ExamplePrompts() []string
	Improve(ctx context.Context, req *dto.ImproveMessageRequest) (*dto.ImproveMessageResponse, error)
}

type chatService struct {
	sessions     *session.Manager
	orchestrator *orchestrator.Orchestrator
}

func NewChatService(sessions *session.Manager, orchestrator *orchestrator.Orchestrator) IChatService {
	return &chatService{
		sessions:     sessions,
		orchestrator: orchestrator,
	}
}

func (s *chatService) ListConversations(ctx context.Context, userId uuid.UUID) ([]dto.ConversationDTO, error) {
	st, err := s.sessions.Store(ctx, userId)
	if err != nil {
		return nil, err
	}

	activeId := uuid.Nil
	if active, ok := st.Active(); ok {
		activeId = active.Id
	}

	conversations := st.Conversations()
	out := make([]dto.ConversationDTO, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, toConversationDTO(c, c.Id == activeId))
	}
	return out, nil
}

func (s *chatService) CreateConversation(ctx context.Context, userId uuid.UUID) (*dto.ConversationDetailResponse, error) {
	st, err := s.sessions.Store(ctx, userId)
	if err != nil {
		return nil, err
	}

	conversation, err := s.orchestrator.NewChat(ctx, st)
	if err != nil {
		return nil, err
	}
	return toDetail(conversation, true), nil
}

func (s *chatService) OpenConversation(ctx context.Context, userId, conversationId uuid.UUID) (*dto.ConversationDetailResponse, error) {
	st, err := s.sessions.Store(ctx, userId)
	if err != nil {
		return nil, err
	}

	conversation, err := s.orchestrator.Open(ctx, st, conversationId)
	if err != nil {
		return nil, err
	}
	return toDetail(conversation, true), nil
}

func (s *chatService) SendMessage(ctx context.Context, userId, conversationId uuid.UUID, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	st, err := s.sessions.Store(ctx, userId)
	if err != nil {
		return nil, err
	}

	sub, err := s.orchestrator.Submit(ctx, st, conversationId, req.Content)
	if err != nil {
		return nil, err
	}

	title := chat.DefaultTitle
	if c, ok := st.Conversation(conversationId); ok {
		title = c.Title
	}
	return toSendResponse(sub, title), nil
}

func (s *chatService) SendExamplePrompt(ctx context.Context, userId uuid.UUID, req *dto.ExamplePromptRequest) (*dto.SendMessageResponse, error) {
	st, err := s.sessions.Store(ctx, userId)
	if err != nil {
		return nil, err
	}

	conversation, sub, err := s.orchestrator.SendExamplePrompt(ctx, st, req.Prompt)
	if err != nil {
		return nil, err
	}
	return toSendResponse(sub, conversation.Title), nil
}

func (s *chatService) ExamplePrompts() []string {
	out := make([]string, len(constant.ExamplePrompts))
	copy(out, constant.ExamplePrompts)
	return out
}

func (s *chatService) Improve(ctx context.Context, req *dto.ImproveMessageRequest) (*dto.ImproveMessageResponse, error) {
	improved, err := s.orchestrator.Improve(ctx, req.Draft)
	if err != nil {
		return nil, err
	}
	return &dto.ImproveMessageResponse{Improved: improved}, nil
}

func toConversationDTO(c chat.Conversation, active bool) dto.ConversationDTO {
	return dto.ConversationDTO{Id: c.Id, Title: c.Title, CreatedAt: c.CreatedAt, Active: active}
}

func toMessageDTO(m chat.Message) dto.MessageDTO {
	return dto.MessageDTO{
		Id:        m.Id,
		Role:      string(m.Role),
		Content:   m.Content,
		Pending:   m.IsPending(),
		CreatedAt: m.CreatedAt,
	}
}

func toDetail(c chat.Conversation, active bool) *dto.ConversationDetailResponse {
	messages := make([]dto.MessageDTO, 0, len(c.Messages))
	for _, m := range c.Messages {
		messages = append(messages, toMessageDTO(m))
	}
	return &dto.ConversationDetailResponse{
		ConversationDTO: toConversationDTO(c, active),
		Messages:        messages,
	}
}

func toSendResponse(sub *orchestrator.Submission, title string) *dto.SendMessageResponse {
	return &dto.SendMessageResponse{
		ConversationId: sub.ConversationId,
		Title:          title,
		Sent:           toMessageDTO(sub.UserMessage),
		Placeholder:    toMessageDTO(sub.Placeholder),
	}
}
