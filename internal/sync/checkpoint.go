package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"canvas-grade-sync/internal/model"

	"github.com/go-redis/redis/v8"
)

// CheckpointStore persists chunk-boundary snapshots keyed by
// (owner, scope) so a failed attempt can resume instead of restarting.
// Entries expire after a retention TTL and are cleared on success.
type CheckpointStore interface {
	Get(ctx context.Context, ownerID int64, scope model.Scope) (*model.Checkpoint, error)
	Save(ctx context.Context, ownerID int64, scope model.Scope, checkpoint *model.Checkpoint) error
	Clear(ctx context.Context, ownerID int64, scope model.Scope) error
}

func checkpointKey(ownerID int64, scope model.Scope) string {
	return fmt.Sprintf("sync:checkpoint:%d:%s", ownerID, scope)
}

type RedisCheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCheckpointStore(client *redis.Client, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisCheckpointStore) Get(ctx context.Context, ownerID int64, scope model.Scope) (*model.Checkpoint, error) {
	data, err := s.client.Get(ctx, checkpointKey(ownerID, scope)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var checkpoint model.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

func (s *RedisCheckpointStore) Save(ctx context.Context, ownerID int64, scope model.Scope, checkpoint *model.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, checkpointKey(ownerID, scope), data, s.ttl).Err()
}

func (s *RedisCheckpointStore) Clear(ctx context.Context, ownerID int64, scope model.Scope) error {
	return s.client.Del(ctx, checkpointKey(ownerID, scope)).Err()
}

// MemoryCheckpointStore backs checkpoints with a process-local map.
// Used when no Redis is configured and in tests; resume across process
// restarts is lost, which is an accepted degradation.
type MemoryCheckpointStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryCheckpoint
}

type memoryCheckpoint struct {
	checkpoint model.Checkpoint
	expiresAt  time.Time
}

func NewMemoryCheckpointStore(ttl time.Duration) *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		ttl:     ttl,
		entries: make(map[string]memoryCheckpoint),
	}
}

func (s *MemoryCheckpointStore) Get(_ context.Context, ownerID int64, scope model.Scope) (*model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[checkpointKey(ownerID, scope)]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, checkpointKey(ownerID, scope))
		return nil, nil
	}

	checkpoint := entry.checkpoint
	return &checkpoint, nil
}

func (s *MemoryCheckpointStore) Save(_ context.Context, ownerID int64, scope model.Scope, checkpoint *model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[checkpointKey(ownerID, scope)] = memoryCheckpoint{
		checkpoint: *checkpoint,
		expiresAt:  time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryCheckpointStore) Clear(_ context.Context, ownerID int64, scope model.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, checkpointKey(ownerID, scope))
	return nil
}
