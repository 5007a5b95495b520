package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const counterKeyPrefix = "counter:"

type mirroredCounter struct {
	Value    int64     `json:"value"`
	LoadedAt time.Time `json:"loaded_at"`
}

// CounterMirror shares loaded counter values between instances through a
// Cache. Entries expire from the store together with the counter TTL.
type CounterMirror struct {
	cache Cache
}

func NewCounterMirror(cache Cache) *CounterMirror {
	return &CounterMirror{cache: cache}
}

func (m *CounterMirror) Load(ctx context.Context, key string) (int64, time.Time, bool, error) {
	raw, err := m.cache.Get(ctx, counterKeyPrefix+key)
	if errors.Is(err, ErrCacheMiss) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, err
	}

	var c mirroredCounter
	if err := json.Unmarshal(raw, &c); err != nil {
		return 0, time.Time{}, false, err
	}
	return c.Value, c.LoadedAt, true, nil
}

func (m *CounterMirror) Store(ctx context.Context, key string, value int64, loadedAt time.Time, ttl time.Duration) error {
	raw, err := json.Marshal(mirroredCounter{Value: value, LoadedAt: loadedAt})
	if err != nil {
		return err
	}
	return m.cache.Set(ctx, counterKeyPrefix+key, raw, ttl)
}

func (m *CounterMirror) Delete(ctx context.Context, key string) error {
	return m.cache.Delete(ctx, counterKeyPrefix+key)
}
