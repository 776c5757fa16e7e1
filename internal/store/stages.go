package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance"
)

// ErrStageNotFound is returned for unknown or expired staged check-ins.
var ErrStageNotFound = errors.New("staged check-in not found or expired")

// Stages holds staged check-ins between the scan and the operator's confirmation.
type Stages interface {
	Put(ctx context.Context, a attendance.Attempt) error
	Get(ctx context.Context, tenantID, token string) (attendance.Attempt, error)
	Delete(ctx context.Context, tenantID, token string) error
}

// RedisStages keeps staged attempts in redis with a TTL.
type RedisStages struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStages builds a stage holder; ttl defaults to two minutes.
func NewRedisStages(client *redis.Client, prefix string, ttl time.Duration) *RedisStages {
	if prefix == "" {
		prefix = "rollcall:stage"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisStages{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStages) key(tenantID, token string) string {
	return s.prefix + ":" + tenantID + ":" + token
}

// Put stores or refreshes a staged attempt.
func (s *RedisStages) Put(ctx context.Context, a attendance.Attempt) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(a.TenantID, a.Token), b, s.ttl).Err()
}

// Get loads a staged attempt.
func (s *RedisStages) Get(ctx context.Context, tenantID, token string) (attendance.Attempt, error) {
	b, err := s.client.Get(ctx, s.key(tenantID, token)).Bytes()
	if err == redis.Nil {
		return attendance.Attempt{}, ErrStageNotFound
	}
	if err != nil {
		return attendance.Attempt{}, err
	}
	var a attendance.Attempt
	if err := json.Unmarshal(b, &a); err != nil {
		return attendance.Attempt{}, err
	}
	return a, nil
}

// Delete drops a staged attempt.
func (s *RedisStages) Delete(ctx context.Context, tenantID, token string) error {
	return s.client.Del(ctx, s.key(tenantID, token)).Err()
}

// MemoryStages is a process-local stage holder for dev/testing.
type MemoryStages struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryStage
}

type memoryStage struct {
	attempt attendance.Attempt
	expires time.Time
}

// NewMemoryStages creates an in-memory stage holder.
func NewMemoryStages(ttl time.Duration) *MemoryStages {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &MemoryStages{ttl: ttl, now: time.Now, items: make(map[string]memoryStage)}
}

func (s *MemoryStages) Put(_ context.Context, a attendance.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[a.TenantID+":"+a.Token] = memoryStage{attempt: a, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStages) Get(_ context.Context, tenantID, token string) (attendance.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantID + ":" + token
	item, ok := s.items[key]
	if !ok {
		return attendance.Attempt{}, ErrStageNotFound
	}
	if s.now().After(item.expires) {
		delete(s.items, key)
		return attendance.Attempt{}, ErrStageNotFound
	}
	return item.attempt, nil
}

func (s *MemoryStages) Delete(_ context.Context, tenantID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, tenantID+":"+token)
	return nil
}
