package memory

import (
	"time"

	"ai-chatflow-be/pkg/chat/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps one conversation store per signed-in user.
// Idle sessions expire and are rebuilt from the database on the next request.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

// Get returns the user's store and refreshes its expiry.
func (r *SessionRepository) Get(userId uuid.UUID) (*store.Store, bool) {
	x, found := r.cache.Get(userId.String())
	if !found {
		return nil, false
	}
	st := x.(*store.Store)
	r.cache.SetDefault(userId.String(), st)
	return st, true
}

// SaveIfAbsent stores st unless another store was saved first, and returns the one kept.
func (r *SessionRepository) SaveIfAbsent(st *store.Store) *store.Store {
	key := st.UserId().String()
	if err := r.cache.Add(key, st, cache.DefaultExpiration); err != nil {
		if existing, found := r.cache.Get(key); found {
			return existing.(*store.Store)
		}
		r.cache.SetDefault(key, st)
	}
	return st
}

func (r *SessionRepository) Delete(userId uuid.UUID) {
	r.cache.Delete(userId.String())
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
