package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

type memoryCache struct {
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memoryCache) Ping(context.Context) error { return m.err }
func (m *memoryCache) Close() error               { return nil }

func TestCounterMirrorRoundTrip(t *testing.T) {
	store := newMemoryCache()
	m := NewCounterMirror(store)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	_, _, found, err := m.Load(ctx, "rounds")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, found)

	assert.Equal(t, nil, m.Store(ctx, "rounds", 1234, at, 5*time.Minute))
	assert.Equal(t, 5*time.Minute, store.ttls["counter:rounds"])

	value, loadedAt, found, err := m.Load(ctx, "rounds")
	assert.Equal(t, nil, err)
	assert.T(t, found)
	assert.Equal(t, int64(1234), value)
	assert.T(t, loadedAt.Equal(at))
}

func TestCounterMirrorSurfacesStoreErrors(t *testing.T) {
	store := newMemoryCache()
	store.err = errors.New("connection refused")

	_, _, found, err := NewCounterMirror(store).Load(context.Background(), "games")
	assert.T(t, err != nil)
	assert.Equal(t, false, found)
}
