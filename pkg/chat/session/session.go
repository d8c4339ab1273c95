// Package session binds signed-in identities to their conversation stores.
package session

import (
	"context"
	"sync"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/repository/memory"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/store"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// AuthListener is told about sign-in and sign-out. identity is nil on sign-out.
type AuthListener func(userId uuid.UUID, identity *chat.Identity)

// StoreFactory builds an empty store for a user, with its collaborators wired in.
type StoreFactory func(userId uuid.UUID) *store.Store

type Manager struct {
	sessions *memory.SessionRepository
	newStore StoreFactory
	logger   logger.ILogger
	loads    singleflight.Group

	mu        sync.RWMutex
	listeners map[int]AuthListener
	nextId    int
}

func NewManager(sessions *memory.SessionRepository, newStore StoreFactory, logger logger.ILogger) *Manager {
	return &Manager{
		sessions:  sessions,
		newStore:  newStore,
		logger:    logger,
		listeners: make(map[int]AuthListener),
	}
}

// OnAuthChange registers listener and returns a function that removes it.
func (m *Manager) OnAuthChange(listener AuthListener) func() {
	m.mu.Lock()
	id := m.nextId
	m.nextId++
	m.listeners[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SignIn loads the user's conversations and announces the identity.
func (m *Manager) SignIn(ctx context.Context, identity chat.Identity) (*store.Store, error) {
	st, err := m.Store(ctx, identity.Id)
	if err != nil {
		return nil, err
	}

	m.logger.Info("SESSION", "User signed in", map[string]interface{}{"user_id": identity.Id.String()})
	m.emit(identity.Id, &identity)
	return st, nil
}

// SignOut drops the user's store and announces the sign-out.
func (m *Manager) SignOut(ctx context.Context, userId uuid.UUID) {
	m.sessions.Delete(userId)

	m.logger.Info("SESSION", "User signed out", map[string]interface{}{"user_id": userId.String()})
	m.emit(userId, nil)
}

// Store returns the user's store, loading the conversation list on first use.
// Tokens outlive the process, so a valid token without a session gets a fresh one.
func (m *Manager) Store(ctx context.Context, userId uuid.UUID) (*store.Store, error) {
	if st, ok := m.sessions.Get(userId); ok {
		return st, nil
	}

	v, err, _ := m.loads.Do(userId.String(), func() (interface{}, error) {
		if st, ok := m.sessions.Get(userId); ok {
			return st, nil
		}
		st := m.newStore(userId)
		if err := st.Load(ctx); err != nil {
			return nil, err
		}
		return m.sessions.SaveIfAbsent(st), nil
	})
	if err != nil {
		m.logger.Error("SESSION", "Failed to load conversations", map[string]interface{}{
			"user_id": userId.String(),
			"error":   err.Error(),
		})
		return nil, err
	}
	return v.(*store.Store), nil
}

func (m *Manager) emit(userId uuid.UUID, identity *chat.Identity) {
	m.mu.RLock()
	listeners := make([]AuthListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.RUnlock()

	for _, l := range listeners {
		l(userId, identity)
	}
}
