package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/relay"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis, suitable for multi-node
// deployments where the spool must survive a process restart.
//
// Key layout (all under the prefix):
//
//	record:<id>   envelope JSON
//	pending       set of undelivered record ids
//	user:<userID> set of record ids for that user
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "mentorai:").
	Prefix string
	// RecordTTL is the record expiry (0 = never expire).
	RecordTTL time.Duration
}

// NewRedisStore creates a Redis record store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(client, cfg.Prefix, cfg.RecordTTL), nil
}

// NewRedisStoreFromClient wraps an existing client. Useful for testing
// with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return newRedisStore(client, prefix, ttl)
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "mentorai:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) recordKey(id string) string { return s.prefix + "record:" + id }
func (s *RedisStore) pendingKey() string         { return s.prefix + "pending" }
func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save persists a record envelope and maintains the indexes.
func (s *RedisStore) Save(ctx context.Context, rec *relay.Record, delivered bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	env := Envelope{Record: rec, Delivered: delivered, UpdatedAt: time.Now().UTC()}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(rec.ID), data, s.ttl)
	pipe.SAdd(ctx, s.userKey(rec.UserID), rec.ID)
	if delivered {
		pipe.SRem(ctx, s.pendingKey(), rec.ID)
	} else {
		pipe.SAdd(ctx, s.pendingKey(), rec.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Pending returns undelivered records, oldest first.
func (s *RedisStore) Pending(ctx context.Context) ([]*relay.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.pendingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return s.fetch(ctx, ids)
}

// MarkDelivered flags a record as delivered.
func (s *RedisStore) MarkDelivered(ctx context.Context, recordID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	env, err := s.get(ctx, recordID)
	if err != nil {
		return err
	}
	env.Delivered = true
	env.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(recordID), data, s.ttl)
	pipe.SRem(ctx, s.pendingKey(), recordID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// History returns all records for a user, oldest first.
func (s *RedisStore) History(ctx context.Context, userID string) ([]*relay.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list user records: %w", err)
	}
	return s.fetch(ctx, ids)
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, id string) (*Envelope, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("load record: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return &env, nil
}

func (s *RedisStore) fetch(ctx context.Context, ids []string) ([]*relay.Record, error) {
	recs := make([]*relay.Record, 0, len(ids))
	for _, id := range ids {
		env, err := s.get(ctx, id)
		if err != nil {
			// Expired records leave dangling index entries behind.
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		recs = append(recs, env.Record)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CapturedAt.Before(recs[j].CapturedAt)
	})
	return recs, nil
}
