package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisSessionStore struct {
	rdb    *redis.Client
	prefix string // e.g. xhs:session:
	ttl    time.Duration
}

func newRedisClient(cfg Config) (*redis.Client, error) {
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opt), nil
	}

	opt := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		DB:       cfg.RedisDB,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisSSL {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opt), nil
}

func newRedisSessionStore(cfg Config) (*redisSessionStore, error) {
	rdb, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &redisSessionStore{rdb: rdb, prefix: cfg.SessionPrefix, ttl: cfg.SessionTTL()}, nil
}

func (c *redisSessionStore) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *redisSessionStore) key(id string) string { return c.prefix + id }

func (c *redisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := c.rdb.Get(ctx, c.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// 反序列化失败：当成不存在，调用方会重新建会话
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (c *redisSessionStore) Create(ctx context.Context, s *Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("invalid session")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	// ttl<=0 时永久保存
	return c.rdb.Set(ctx, c.key(s.ID), string(b), c.ttl).Err()
}

func (c *redisSessionStore) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, c.key(id)).Err()
}
