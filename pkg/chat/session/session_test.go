package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/repository/memory"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/chattest"
	"ai-chatflow-be/pkg/chat/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(gw *chattest.Gateway) *Manager {
	return NewManager(
		memory.NewSessionRepository(time.Hour),
		func(userId uuid.UUID) *store.Store { return store.New(userId, gw) },
		logger.NewNopLogger(),
	)
}

func TestSignInLoadsStoreAndNotifies(t *testing.T) {
	gw := chattest.NewGateway()
	m := newManager(gw)
	identity := chat.Identity{Id: uuid.New(), DisplayName: "Ada", Email: "ada@example.com"}
	gw.Seed(identity.Id, "First chat")

	var got []*chat.Identity
	m.OnAuthChange(func(userId uuid.UUID, id *chat.Identity) {
		assert.Equal(t, identity.Id, userId)
		got = append(got, id)
	})

	st, err := m.SignIn(context.Background(), identity)
	require.NoError(t, err)
	assert.Len(t, st.Conversations(), 1)

	m.SignOut(context.Background(), identity.Id)

	require.Len(t, got, 2)
	require.NotNil(t, got[0])
	assert.Equal(t, "Ada", got[0].DisplayName)
	assert.Nil(t, got[1])
}

func TestStoreIsLoadedOncePerSession(t *testing.T) {
	gw := chattest.NewGateway()
	m := newManager(gw)
	userId := uuid.New()

	var wg sync.WaitGroup
	stores := make([]*store.Store, 8)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := m.Store(context.Background(), userId)
			assert.NoError(t, err)
			stores[i] = st
		}(i)
	}
	wg.Wait()

	for _, st := range stores {
		assert.Same(t, stores[0], st)
	}

	m.SignOut(context.Background(), userId)
	fresh, err := m.Store(context.Background(), userId)
	require.NoError(t, err)
	assert.NotSame(t, stores[0], fresh)
}

func TestStoreLoadFailureIsNotCached(t *testing.T) {
	gw := chattest.NewGateway()
	gw.ListConversationsErr = &chat.PersistenceError{Op: "list conversations", Err: errors.New("down")}
	m := newManager(gw)
	userId := uuid.New()

	_, err := m.Store(context.Background(), userId)
	var perr *chat.PersistenceError
	require.ErrorAs(t, err, &perr)

	gw.ListConversationsErr = nil
	_, err = m.Store(context.Background(), userId)
	assert.NoError(t, err)
}

func TestOnAuthChangeUnsubscribe(t *testing.T) {
	m := newManager(chattest.NewGateway())
	calls := 0
	unsubscribe := m.OnAuthChange(func(uuid.UUID, *chat.Identity) { calls++ })

	m.SignOut(context.Background(), uuid.New())
	unsubscribe()
	m.SignOut(context.Background(), uuid.New())

	assert.Equal(t, 1, calls)
}
