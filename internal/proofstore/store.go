// Package proofstore keeps the per-step proof-of-work state in Redis: nonce,
// proof hash, retry counter and the last result record, each under its own
// TTL. Entries are created lazily and expire on their own; the vector store
// stays authoritative.
package proofstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/debian777/kairos-mcp/internal/faults"
)

// Keyspace and TTLs per entry kind.
const (
	nonceTTL  = time.Hour
	hashTTL   = 7 * 24 * time.Hour
	retryTTL  = time.Hour
	resultTTL = 7 * 24 * time.Hour

	noncePrefix  = "pow:nonce:"
	hashPrefix   = "pow:hash:"
	retryPrefix  = "pow:retry:"
	resultPrefix = "pow:result:"
)

// ResultRecord is the last solution or attestation recorded for a step.
type ResultRecord struct {
	Outcome      string    `json:"outcome"`
	Message      string    `json:"message,omitempty"`
	QualityBonus float64   `json:"quality_bonus,omitempty"`
	RatedAt      time.Time `json:"rated_at"`
}

// Store is the Redis-backed proof state. All keys are keyed by memory uuid.
type Store struct {
	rdb *redis.Client
}

// New connects using a redis:// URL.
func New(kvURL string) (*Store, error) {
	opts, err := redis.ParseURL(kvURL)
	if err != nil {
		return nil, fmt.Errorf("kv url %q: %w", kvURL, err)
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an existing client (used by tests with miniredis).
func NewFromClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) SetNonce(ctx context.Context, memoryUUID, nonce string) error {
	return s.set(ctx, noncePrefix+memoryUUID, nonce, nonceTTL)
}

func (s *Store) Nonce(ctx context.Context, memoryUUID string) (string, error) {
	return s.get(ctx, noncePrefix+memoryUUID)
}

func (s *Store) SetHash(ctx context.Context, memoryUUID, proofHash string) error {
	return s.set(ctx, hashPrefix+memoryUUID, proofHash, hashTTL)
}

func (s *Store) Hash(ctx context.Context, memoryUUID string) (string, error) {
	return s.get(ctx, hashPrefix+memoryUUID)
}

// ResetRetries zeroes the counter, restarting its TTL window.
func (s *Store) ResetRetries(ctx context.Context, memoryUUID string) error {
	return s.set(ctx, retryPrefix+memoryUUID, "0", retryTTL)
}

// IncrRetries bumps the counter and returns the new value.
func (s *Store) IncrRetries(ctx context.Context, memoryUUID string) (int, error) {
	key := retryPrefix + memoryUUID
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, faults.Wrap(err, faults.CodeKVFailed, "incr %s", key)
	}
	if err := s.rdb.Expire(ctx, key, retryTTL).Err(); err != nil {
		return 0, faults.Wrap(err, faults.CodeKVFailed, "expire %s", key)
	}
	return int(n), nil
}

func (s *Store) Retries(ctx context.Context, memoryUUID string) (int, error) {
	v, err := s.get(ctx, retryPrefix+memoryUUID)
	if err != nil || v == "" {
		return 0, err
	}
	var n int
	_, convErr := fmt.Sscanf(v, "%d", &n)
	if convErr != nil {
		return 0, nil
	}
	return n, nil
}

func (s *Store) SaveResult(ctx context.Context, memoryUUID string, rec ResultRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return faults.Wrap(err, faults.CodeInternal, "marshal result record")
	}
	return s.set(ctx, resultPrefix+memoryUUID, string(b), resultTTL)
}

// LastResult returns the recorded result, or nil when none is stored.
func (s *Store) LastResult(ctx context.Context, memoryUUID string) (*ResultRecord, error) {
	v, err := s.get(ctx, resultPrefix+memoryUUID)
	if err != nil || v == "" {
		return nil, err
	}
	var rec ResultRecord
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return nil, faults.Wrap(err, faults.CodeInternal, "unmarshal result record")
	}
	return &rec, nil
}

func (s *Store) Healthy(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return faults.Wrap(err, faults.CodeKVFailed, "ping kv")
	}
	return nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return faults.Wrap(err, faults.CodeKVFailed, "set %s", key)
	}
	return nil
}

// get returns "" for a missing key; only transport errors surface.
func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", faults.Wrap(err, faults.CodeKVFailed, "get %s", key)
	}
	return v, nil
}
