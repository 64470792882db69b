package booking

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "tablebot:session:"

// RedisStore keeps sessions as JSON values whose expiry doubles as the idle
// timeout. Every save refreshes it.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(userID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err == redis.Nil {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *RedisStore) CreateOrReset(ctx context.Context, userID, chatID int64) (Session, error) {
	sess := NewSession(userID, chatID, time.Now())
	if err := s.put(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess Session) error {
	sess.UpdatedAt = time.Now()
	return s.put(ctx, sess)
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, sessionKey(userID)).Err()
}

func (s *RedisStore) put(ctx context.Context, sess Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, sessionKey(sess.UserID), b, ttl).Err()
}
