package rulestore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

var redisSnapshotKey = "guildmod/snapshot"

// Keeps the whole snapshot as one JSON value under a single redis key, without expiry.
type RedisRepository struct {
	Client *redis.Client
	Key    string
}

var _ Repository = (*RedisRepository)(nil)

func NewRedisRepository(redisURL string) (*RedisRepository, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisRepository{
		Client: rdb,
		Key:    redisSnapshotKey,
	}, nil
}

func (r *RedisRepository) Load(ctx context.Context) (*Snapshot, error) {
	b, err := r.Client.Get(ctx, r.Key).Bytes()
	if err == redis.Nil {
		return emptySnapshot(), nil
	} else if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	snap.normalize()
	return &snap, nil
}

func (r *RedisRepository) Save(ctx context.Context, snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, r.Key, b, 0).Err()
}
