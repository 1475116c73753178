package wheel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemorySessionStore keeps state in process. Values are stored encoded so
// callers never share memory with the store.
type MemorySessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

func (s *MemorySessionStore) Load(ctx context.Context, userID int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return &State{}, nil
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		delete(s.entries, userID)
		return &State{}, nil
	}
	var st State
	if err := json.Unmarshal(e.data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MemorySessionStore) Save(ctx context.Context, userID int64, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st == nil || st.empty() {
		delete(s.entries, userID)
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.entries[userID] = memoryEntry{data: data, expires: s.now().Add(s.ttl)}
	return nil
}

const redisKeyPrefix = "wheelbot:session:"

// RedisSessionStore shares state between bot replicas and survives restarts.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func redisKey(userID int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, userID)
}

func (s *RedisSessionStore) Load(ctx context.Context, userID int64) (*State, error) {
	data, err := s.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &State{}, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt session for user %d: %w", userID, err)
	}
	return &st, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, userID int64, st *State) error {
	if st == nil || st.empty() {
		return s.client.Del(ctx, redisKey(userID)).Err()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(userID), data, s.ttl).Err()
}
