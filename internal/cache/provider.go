package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Provider is the key-value store the orchestrator publishes its latest
// report and health snapshots to. Readers outside the process (dashboards,
// sibling services) consume the published keys; the engine itself never
// depends on reading them back.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a key was not found.
var ErrCacheMiss = errors.New("cache miss")

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, p Provider, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return p.Set(ctx, key, data, ttl)
}

// GetJSON fetches key and unmarshals it into out.
func GetJSON(ctx context.Context, p Provider, key string, out any) error {
	data, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// NoopProvider discards writes and misses every read. Used when snapshot
// publication is disabled.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoopProvider) Del(context.Context, string) error { return nil }

func (NoopProvider) Close() error { return nil }
