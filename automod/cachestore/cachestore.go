package cachestore

import (
	"context"
	"encoding/json"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

// Fetches and decodes a JSON value. The bool is false on a cache miss.
func GetJSON[T any](ctx context.Context, cs CacheStore, name, key string) (*T, bool, error) {
	raw, err := cs.Get(ctx, name, key)
	if err != nil || raw == "" {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// treat corrupt entries as a miss, and drop them
		_ = cs.Purge(ctx, name, key)
		return nil, false, nil
	}
	return &v, true, nil
}

func SetJSON(ctx context.Context, cs CacheStore, name, key string, val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return cs.Set(ctx, name, key, string(b))
}
