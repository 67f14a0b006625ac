package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Store implements core.IdempotencyStore on top of a Redis client. A
// single SETNX call backs CheckAndMark, giving exactly the atomicity
// spec.md §4.5 needs without a Lua script or transaction.
type Store struct {
	client *redis.Client
	config Config
	logger *slog.Logger
}

// New dials Redis and verifies connectivity before returning.
func New(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Addr,
		Password:        config.Password,
		DB:              config.DB,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("idempotency/redis: connect to %s: %w", config.Addr, err)
	}

	logger.Info("idempotency store connected to redis", "addr", config.Addr, "db", config.DB)
	return &Store{client: client, config: config, logger: logger}, nil
}

// NewFromClient wraps an already-constructed client, used by tests against miniredis.
func NewFromClient(client *redis.Client, config Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, config: config, logger: logger}
}

func (s *Store) key(opID string) string {
	return s.config.KeyPrefix + opID
}

// CheckAndMark implements core.IdempotencyStore: SETNX either creates the
// key (returns true, first time seen) or finds it already present
// (returns false, already processed).
func (s *Store) CheckAndMark(ctx context.Context, opID string, ttl time.Duration) (bool, error) {
	record := marshalRecord(nil)
	ok, err := s.client.SetNX(ctx, s.key(opID), record, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency/redis: CheckAndMark %q: %w", opID, err)
	}
	return ok, nil
}

func (s *Store) IsProcessed(ctx context.Context, opID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(opID)).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency/redis: IsProcessed %q: %w", opID, err)
	}
	return n > 0, nil
}

// MarkProcessed stores opID with metadata, overwriting any placeholder
// CheckAndMark left behind and keeping that key's remaining TTL. A key
// that is absent or has no expiry gets the store's default TTL.
func (s *Store) MarkProcessed(ctx context.Context, opID string, metadata map[string]any) error {
	record := marshalRecord(metadata)
	ttl, err := s.client.TTL(ctx, s.key(opID)).Result()
	if err != nil {
		return fmt.Errorf("idempotency/redis: MarkProcessed %q: %w", opID, err)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL()
	}
	if err := s.client.Set(ctx, s.key(opID), record, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency/redis: MarkProcessed %q: %w", opID, err)
	}
	return nil
}

func (s *Store) GetMetadata(ctx context.Context, opID string) (map[string]any, bool, error) {
	val, err := s.client.Get(ctx, s.key(opID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("idempotency/redis: GetMetadata %q: %w", opID, err)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(val), &meta); err != nil {
		s.logger.Warn("idempotency/redis: malformed metadata record", "op_id", opID, "error", err)
		return nil, true, nil
	}
	return meta, true, nil
}

func (s *Store) defaultTTL() time.Duration {
	return 24 * time.Hour
}

func (s *Store) Close() error {
	return s.client.Close()
}

func marshalRecord(metadata map[string]any) []byte {
	data, err := json.Marshal(metadata)
	if err != nil || metadata == nil {
		return []byte("{}")
	}
	return data
}
