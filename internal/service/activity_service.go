package service

import (
	"context"
	"time"

	"ai-chatflow-be/internal/dto"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/pkg/events"

	"github.com/google/uuid"
)

const activityModule = "ACTIVITY"

// ActivityLog is a file-backed log that can be read back.
type ActivityLog interface {
	logger.ILogger
	ReadEntries(match func(logger.LogEntry) bool, limit int) ([]logger.LogEntry, error)
}

type IActivityService interface {
	// Record is the event-bus handler writing one line per domain event.
	Record(ctx context.Context, event events.Event) error
	Recent(ctx context.Context, userId uuid.UUID, limit int) ([]dto.ActivityDTO, error)
}

type activityService struct {
	log ActivityLog
}

func NewActivityService(log ActivityLog) IActivityService {
	return &activityService{log: log}
}

func (s *activityService) Record(ctx context.Context, event events.Event) error {
	details := make(map[string]interface{}, len(event.Payload())+1)
	for k, v := range event.Payload() {
		details[k] = v
	}
	details["occurred_at"] = event.Timestamp().UTC().Format(time.RFC3339)

	s.log.Info(activityModule, event.EventType(), details)
	return nil
}

func (s *activityService) Recent(ctx context.Context, userId uuid.UUID, limit int) ([]dto.ActivityDTO, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	uid := userId.String()

	entries, err := s.log.ReadEntries(func(e logger.LogEntry) bool {
		return e.Module == activityModule && e.Details["user_id"] == uid
	}, limit)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ActivityDTO, 0, len(entries))
	for _, e := range entries {
		occurredAt, _ := e.Details["occurred_at"].(string)
		if occurredAt == "" {
			occurredAt = e.Timestamp
		}
		data := make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			if k != "occurred_at" && k != "user_id" {
				data[k] = v
			}
		}
		out = append(out, dto.ActivityDTO{Type: e.Message, OccurredAt: occurredAt, Data: data})
	}
	return out, nil
}
