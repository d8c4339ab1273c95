// Package titlesync moves derived conversation titles to the database off the request path.
package titlesync

import (
	"context"
	"encoding/json"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/pkg/chat/gateway"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const Topic = "conversation.renamed"

type renameMessage struct {
	UserId         uuid.UUID `json:"user_id"`
	ConversationId uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title"`
}

// Publisher queues renames. It satisfies store.TitleSink.
type Publisher struct {
	publisher message.Publisher
	topic     string
	logger    logger.ILogger
}

func NewPublisher(publisher message.Publisher, topic string, logger logger.ILogger) *Publisher {
	return &Publisher{publisher: publisher, topic: topic, logger: logger}
}

// RenameAsync never reports an error; a rename that can't be queued is logged and dropped.
func (p *Publisher) RenameAsync(ctx context.Context, userId, conversationId uuid.UUID, title string) {
	payload, err := json.Marshal(renameMessage{UserId: userId, ConversationId: conversationId, Title: title})
	if err != nil {
		p.logger.Error("TITLE_SYNC", "Failed to marshal rename", map[string]interface{}{"error": err.Error()})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Error("TITLE_SYNC", "Failed to queue rename", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
	}
}

// Consumer applies queued renames through the gateway.
type Consumer struct {
	messages <-chan *message.Message
	cancel   context.CancelFunc
	gateway  gateway.Gateway
	logger   logger.ILogger
}

// NewConsumer subscribes right away, so renames queued before Consume starts are kept.
func NewConsumer(subscriber message.Subscriber, topic string, gw gateway.Gateway, logger logger.ILogger) (*Consumer, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	messages, err := subscriber.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Consumer{messages: messages, cancel: cancel, gateway: gw, logger: logger}, nil
}

// Consume handles renames until ctx ends, then drops the subscription.
func (c *Consumer) Consume(ctx context.Context) error {
	defer c.cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-c.messages:
			if !ok {
				return nil
			}
			c.processMessage(ctx, msg)
		}
	}
}

// Every message is acked: a rename is not retried, the local title already changed.
func (c *Consumer) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var payload renameMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Error("TITLE_SYNC", "Failed to unmarshal rename", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return
	}

	if err := c.gateway.RenameConversation(ctx, payload.UserId, payload.ConversationId, payload.Title); err != nil {
		c.logger.Error("TITLE_SYNC", "Failed to rename conversation", map[string]interface{}{
			"conversation_id": payload.ConversationId.String(),
			"error":           err.Error(),
		})
		return
	}

	c.logger.Debug("TITLE_SYNC", "Conversation renamed", map[string]interface{}{
		"conversation_id": payload.ConversationId.String(),
		"title":           payload.Title,
	})
}
