package main

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session 一次浏览会话，sc 由 StartedAt 推算
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	CookieID  string    `json:"cookie_id,omitempty"`
}

// SessionStore 会话计数状态只保存在这里
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// memSessionStore 进程内 TTL 缓存（跨进程不共享）
type memSessionStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]sessionItem
}

type sessionItem struct {
	sess   *Session
	expire time.Time
}

func newMemSessionStore(ttl time.Duration) *memSessionStore {
	return &memSessionStore{
		ttl:  ttl,
		now:  time.Now,
		data: map[string]sessionItem{},
	}
}

func (c *memSessionStore) Close() error { return nil }

func (c *memSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	_ = ctx
	c.mu.RLock()
	it, ok := c.data[id]
	c.mu.RUnlock()
	if !ok || it.sess == nil {
		return nil, ErrSessionNotFound
	}
	if !it.expire.IsZero() && c.now().After(it.expire) {
		// lazy delete
		c.mu.Lock()
		delete(c.data, id)
		c.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	cp := *it.sess
	return &cp, nil
}

func (c *memSessionStore) Create(ctx context.Context, s *Session) error {
	_ = ctx
	if s == nil || s.ID == "" {
		return errors.New("invalid session")
	}
	cp := *s
	item := sessionItem{sess: &cp}
	if c.ttl > 0 {
		item.expire = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.data[s.ID] = item
	c.mu.Unlock()
	return nil
}

func (c *memSessionStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	c.mu.Lock()
	delete(c.data, id)
	c.mu.Unlock()
	return nil
}
