package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/podflow/engine"
)

// TypedStore keeps JSON-encoded values of type C under a key prefix.
type TypedStore[C any] struct {
	client    *Client
	keyPrefix string
}

// NewTypedStore returns a store whose keys are keyPrefix:key.
func NewTypedStore[C any](client *Client, keyPrefix string) *TypedStore[C] {
	return &TypedStore[C]{client: client, keyPrefix: keyPrefix}
}

func (s *TypedStore[C]) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Load returns (nil, nil) when key does not exist.
func (s *TypedStore[C]) Load(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.rdb.Get(ctx, s.fullKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("typed store load %q: %w", key, err)
	}
	var val C
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, fmt.Errorf("typed store unmarshal %q: %w", key, err)
	}
	return &val, nil
}

// Save stores val with ttl; 0 means no expiry.
func (s *TypedStore[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("typed store marshal %q: %w", key, err)
	}
	if err := s.client.rdb.Set(ctx, s.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("typed store save %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *TypedStore[C]) Delete(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("typed store delete %q: %w", key, err)
	}
	return nil
}

// LatestKey holds the most recent result next to the per-job keys.
const LatestKey = "latest"

// ResultStore keeps run results by job id and as LatestKey.
type ResultStore struct {
	store *TypedStore[engine.Result]
	ttl   time.Duration
}

// NewResultStore returns a result store under the client's run prefix.
func NewResultStore(client *Client) *ResultStore {
	return &ResultStore{
		store: NewTypedStore[engine.Result](client, client.cfg.RunPrefix()),
		ttl:   client.cfg.resultTTL(),
	}
}

// Save writes res under its job id and as the latest result.
func (s *ResultStore) Save(ctx context.Context, res *engine.Result) error {
	if err := s.store.Save(ctx, res.JobID, res, s.ttl); err != nil {
		return err
	}
	return s.store.Save(ctx, LatestKey, res, s.ttl)
}

// Load returns the result of jobID, or nil if unknown.
func (s *ResultStore) Load(ctx context.Context, jobID string) (*engine.Result, error) {
	return s.store.Load(ctx, jobID)
}

// Latest returns the most recent result, or nil.
func (s *ResultStore) Latest(ctx context.Context) (*engine.Result, error) {
	return s.store.Load(ctx, LatestKey)
}
