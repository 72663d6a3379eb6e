package csrf

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore binds one anti-forgery token to one session ID with the session
// TTL. The token lives exactly as long as the session.
type TokenStore interface {
	Get(ctx context.Context, sid string) (token string, ok bool, err error)
	// SetIfAbsent stores the token unless one already exists, returning the
	// token that ended up bound. Concurrent first issues converge on one value.
	SetIfAbsent(ctx context.Context, sid, token string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, sid string) error
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	clock   func() time.Time
}

type memEntry struct {
	token   string
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memEntry{}, clock: time.Now}
}

// NewMemoryStoreWithClock pins time for tests.
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.clock = clock
	return s
}

func (s *MemoryStore) Get(_ context.Context, sid string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sid]
	if !ok || s.clock().After(e.expires) {
		delete(s.entries, sid)
		return "", false, nil
	}
	return e.token, true, nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, sid, token string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if e, ok := s.entries[sid]; ok && now.Before(e.expires) {
		return e.token, nil
	}
	s.entries[sid] = memEntry{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sid)
	return nil
}

const redisKeyPrefix = "csrf:"

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, sid string) (string, bool, error) {
	token, err := s.client.Get(ctx, s.prefix+sid).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, sid, token string, ttl time.Duration) (string, error) {
	key := s.prefix + sid
	set, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if set {
		return token, nil
	}
	return s.client.Get(ctx, key).Result()
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	return s.client.Del(ctx, s.prefix+sid).Err()
}
