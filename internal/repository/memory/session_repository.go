package memory

import (
	"time"

	"studykit-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps every live study session in memory. Sessions are
// never persisted; an idle session expires after the configured TTL.
type SessionRepository struct {
	cache     *cache.Cache
	maxImages int
}

func NewSessionRepository(ttl time.Duration, maxImages int) *SessionRepository {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	// Expired items are purged every 10 minutes
	c := cache.New(ttl, 10*time.Minute)
	return &SessionRepository{
		cache:     c,
		maxImages: maxImages,
	}
}

// Create stores a fresh session and returns it.
func (r *SessionRepository) Create() *store.ArtifactStore {
	st := store.NewArtifactStore(uuid.NewString(), r.maxImages)
	r.cache.Set(st.ID(), st, cache.DefaultExpiration)
	return st
}

// Get returns the session and renews its expiry.
func (r *SessionRepository) Get(sessionID string) (*store.ArtifactStore, bool) {
	if x, found := r.cache.Get(sessionID); found {
		st := x.(*store.ArtifactStore)
		r.cache.Set(sessionID, st, cache.DefaultExpiration)
		return st, true
	}
	return nil, false
}

// Lookup resolves a session without touching its expiry. The reducer uses
// it so background completions do not keep abandoned sessions alive.
func (r *SessionRepository) Lookup(sessionID string) (*store.ArtifactStore, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.ArtifactStore), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
