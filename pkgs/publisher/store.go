package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	rediskeys "github.com/mysticalseeker24/SuperPage-sub000/pkgs/redis"
)

// ErrUnknownTransaction is returned when a status lookup references a hash
// this service never submitted or whose handle has expired.
var ErrUnknownTransaction = errors.New("unknown transaction hash")

// HandleStore holds in-flight and recently terminal transaction handles for
// status lookups. Loss of a handle is recoverable by re-querying the ledger.
type HandleStore interface {
	Put(ctx context.Context, handle *TransactionHandle) error
	Get(ctx context.Context, txHash string) (*TransactionHandle, error)
}

// RedisHandleStore keeps handles in Redis with a TTL, so status lookups
// survive process restarts and terminal handles age out on their own.
type RedisHandleStore struct {
	client     *redis.Client
	keyBuilder *rediskeys.KeyBuilder
	ttl        time.Duration
}

// NewRedisHandleStore creates a Redis-backed handle store
func NewRedisHandleStore(client *redis.Client, keyBuilder *rediskeys.KeyBuilder, ttl time.Duration) *RedisHandleStore {
	return &RedisHandleStore{
		client:     client,
		keyBuilder: keyBuilder,
		ttl:        ttl,
	}
}

// Put stores or updates a handle under its transaction hash
func (s *RedisHandleStore) Put(ctx context.Context, handle *TransactionHandle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.keyBuilder.TransactionHandle(handle.TxHash), data, s.ttl)
	pipe.ZAdd(ctx, s.keyBuilder.SubmissionsTimeline(), redis.Z{
		Score:  float64(handle.SubmittedAt.Unix()),
		Member: handle.TxHash,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("Failed to store transaction handle %s: %v", handle.TxHash, err)
		return err
	}
	return nil
}

// Get fetches a handle by transaction hash
func (s *RedisHandleStore) Get(ctx context.Context, txHash string) (*TransactionHandle, error) {
	data, err := s.client.Get(ctx, s.keyBuilder.TransactionHandle(txHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnknownTransaction
		}
		return nil, err
	}

	handle := &TransactionHandle{}
	if err := json.Unmarshal(data, handle); err != nil {
		return nil, err
	}
	return handle, nil
}

// MemoryHandleStore is the fallback store when no Redis is configured.
// Old handles are evicted once the map grows past maxEntries.
type MemoryHandleStore struct {
	mu         sync.RWMutex
	handles    map[string]*TransactionHandle
	maxEntries int
}

// NewMemoryHandleStore creates an in-memory handle store
func NewMemoryHandleStore(maxEntries int) *MemoryHandleStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryHandleStore{
		handles:    make(map[string]*TransactionHandle),
		maxEntries: maxEntries,
	}
}

// Put stores or updates a handle under its transaction hash
func (s *MemoryHandleStore) Put(ctx context.Context, handle *TransactionHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *handle
	s.handles[handle.TxHash] = &copied

	if len(s.handles) > s.maxEntries {
		s.evictOldest()
	}
	return nil
}

// Get fetches a handle by transaction hash
func (s *MemoryHandleStore) Get(ctx context.Context, txHash string) (*TransactionHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, ok := s.handles[txHash]
	if !ok {
		return nil, ErrUnknownTransaction
	}
	copied := *handle
	return &copied, nil
}

func (s *MemoryHandleStore) evictOldest() {
	var oldestHash string
	var oldestTime time.Time
	for hash, handle := range s.handles {
		if oldestHash == "" || handle.SubmittedAt.Before(oldestTime) {
			oldestHash = hash
			oldestTime = handle.SubmittedAt
		}
	}
	if oldestHash != "" {
		delete(s.handles, oldestHash)
	}
}
