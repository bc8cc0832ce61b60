package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memProvider struct {
	entries map[string][]byte
}

func newMemProvider() *memProvider {
	return &memProvider{entries: map[string][]byte{}}
}

func (m *memProvider) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

func (m *memProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.entries[key] = value
	return nil
}

func (m *memProvider) Del(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}

func (m *memProvider) Close() error { return nil }

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemProvider()

	type payload struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}

	in := payload{Name: "database", Score: 72.5}
	if err := SetJSON(ctx, store, "health:database", in, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out payload
	if err := GetJSON(ctx, store, "health:database", &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestGetJSONMiss(t *testing.T) {
	ctx := context.Background()
	store := newMemProvider()

	var out map[string]string
	err := GetJSON(ctx, store, "absent", &out)
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestSetJSONRejectsUnmarshalable(t *testing.T) {
	ctx := context.Background()
	store := newMemProvider()

	if err := SetJSON(ctx, store, "bad", func() {}, time.Minute); err == nil {
		t.Fatal("expected marshal error for func value")
	}
}

func TestNoopProviderMissesEverything(t *testing.T) {
	ctx := context.Background()
	var store NoopProvider

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("noop Set failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss from noop Get, got %v", err)
	}
	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("noop Del failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("noop Close failed: %v", err)
	}
}
