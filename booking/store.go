package booking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store owns the live sessions, one per user.
type Store interface {
	// Get returns the live session or ErrSessionNotFound.
	Get(ctx context.Context, userID int64) (Session, error)
	// CreateOrReset atomically replaces any session of the user with a fresh
	// idle one.
	CreateOrReset(ctx context.Context, userID, chatID int64) (Session, error)
	// Save stores the session as the user's current one.
	Save(ctx context.Context, s Session) error
	// Delete drops the user's session. Deleting a missing session is not an error.
	Delete(ctx context.Context, userID int64) error
}

// MemoryStore keeps sessions in process memory. Sessions idle for longer than
// the TTL read as absent and are removed by the janitor.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store; a non-positive ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok || s.IsExpired(m.now(), m.ttl) {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) CreateOrReset(_ context.Context, userID, chatID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := NewSession(userID, chatID, m.now())
	m.sessions[userID] = s
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now()
	m.sessions[s.UserID] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle removes expired sessions and returns how many were dropped.
func (m *MemoryStore) EvictIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.IsExpired(now, m.ttl) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (m *MemoryStore) RunJanitor(ctx context.Context, every time.Duration, log *zap.Logger) {
	if every <= 0 || m.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				log.Info("evicted idle booking sessions", zap.Int("count", n), zap.Int("remaining", m.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}
