package relay

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PendingStore holds the datetime picked in the web form until the bot
// collects it. Pop is one-shot: a value is returned at most once.
type PendingStore interface {
	Put(ctx context.Context, userID int64, value string) error
	Pop(ctx context.Context, userID int64) (value string, found bool, err error)
}

type pendingValue struct {
	value   string
	savedAt time.Time
}

// MemoryPendingStore is a process-local PendingStore. Values left unclaimed
// for longer than the TTL read as absent and are removed by the janitor.
type MemoryPendingStore struct {
	mu     sync.Mutex
	values map[int64]pendingValue
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryPendingStore creates a store; a non-positive ttl disables expiry.
func NewMemoryPendingStore(ttl time.Duration) *MemoryPendingStore {
	return &MemoryPendingStore{
		values: make(map[int64]pendingValue),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *MemoryPendingStore) expired(v pendingValue, now time.Time) bool {
	return m.ttl > 0 && now.Sub(v.savedAt) > m.ttl
}

func (m *MemoryPendingStore) Put(_ context.Context, userID int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[userID] = pendingValue{value: value, savedAt: m.now()}
	return nil
}

func (m *MemoryPendingStore) Pop(_ context.Context, userID int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[userID]
	if !ok {
		return "", false, nil
	}
	delete(m.values, userID)
	if m.expired(v, m.now()) {
		return "", false, nil
	}
	return v.value, true, nil
}

// EvictExpired drops unclaimed values older than the TTL and returns how many
// were removed.
func (m *MemoryPendingStore) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, v := range m.values {
		if m.expired(v, now) {
			delete(m.values, id)
			removed++
		}
	}
	return removed
}

// RunJanitor evicts expired values every interval until ctx is done.
func (m *MemoryPendingStore) RunJanitor(ctx context.Context, every time.Duration, log *zap.Logger) {
	if every <= 0 || m.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.EvictExpired(); n > 0 {
				log.Info("evicted unclaimed pending bookings", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

const pendingKeyPrefix = "tablebot:pending:"

// RedisPendingStore shares pending values between bot and relay processes.
// Values left unclaimed expire after ttl; zero keeps them forever.
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	return &RedisPendingStore{client: client, ttl: ttl}
}

func pendingKey(userID int64) string {
	return pendingKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *RedisPendingStore) Put(ctx context.Context, userID int64, value string) error {
	return s.client.Set(ctx, pendingKey(userID), value, s.ttl).Err()
}

// Pop reads and deletes in one GETDEL so two readers never get the same value.
func (s *RedisPendingStore) Pop(ctx context.Context, userID int64) (string, bool, error) {
	v, err := s.client.GetDel(ctx, pendingKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
