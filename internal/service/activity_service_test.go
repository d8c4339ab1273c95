package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityRecordAndRecent(t *testing.T) {
	log := logger.NewIsolatedLogger(filepath.Join(t.TempDir(), "activity.log"))
	svc := NewActivityService(log)

	me, other := uuid.New(), uuid.New()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, events.BaseEvent{Type: "USER_LOGIN", Data: map[string]interface{}{"user_id": me.String()}, OccurredAt: at}))
	require.NoError(t, svc.Record(ctx, events.BaseEvent{Type: "USER_LOGIN", Data: map[string]interface{}{"user_id": other.String()}, OccurredAt: at}))
	require.NoError(t, svc.Record(ctx, events.BaseEvent{
		Type:       "TURN_COMPLETED",
		Data:       map[string]interface{}{"user_id": me.String(), "conversation_id": "c1"},
		OccurredAt: at.Add(time.Minute),
	}))
	require.NoError(t, log.Sync())

	got, err := svc.Recent(ctx, me, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "TURN_COMPLETED", got[0].Type)
	assert.Equal(t, "2024-03-01T09:01:00Z", got[0].OccurredAt)
	assert.Equal(t, "c1", got[0].Data["conversation_id"])
	assert.NotContains(t, got[0].Data, "user_id")
	assert.Equal(t, "USER_LOGIN", got[1].Type)
}
