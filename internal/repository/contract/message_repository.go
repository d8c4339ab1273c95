package contract

import (
	"context"

	"ai-chatflow-be/internal/entity"
	"ai-chatflow-be/internal/repository/specification"
)

// Messages are append-only.
type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
