package main

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrCookiesNotFound = errors.New("cookies not found")

// CookieRow 一组导入的 cookie，主键是 xhsclient.Cookies.CookieID()
type CookieRow struct {
	ID        string     `json:"id"`
	A1        string     `json:"a1"`
	Platform  string     `json:"xsecappid"`
	WebBuild  string     `json:"web_build"`
	Raw       string     `json:"-"` // J2TEAMS 原文
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c CookieRow) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// CookieStore MySQL 实现见 repo.go
type CookieStore interface {
	UpsertCookies(ctx context.Context, row *CookieRow) error
	GetCookies(ctx context.Context, id string) (*CookieRow, error)
	DeleteCookies(ctx context.Context, id string) error
	ListCookies(ctx context.Context, limit int) ([]*CookieRow, error)
}

// memCookieStore COOKIE_STORE=mem 时使用，重启即丢
type memCookieStore struct {
	mu   sync.RWMutex
	rows map[string]*CookieRow
}

func newMemCookieStore() *memCookieStore {
	return &memCookieStore{rows: map[string]*CookieRow{}}
}

func (m *memCookieStore) UpsertCookies(ctx context.Context, row *CookieRow) error {
	_ = ctx
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *row
	cp.UpdatedAt = now
	if old, ok := m.rows[row.ID]; ok {
		cp.CreatedAt = old.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	m.rows[row.ID] = &cp
	return nil
}

func (m *memCookieStore) GetCookies(ctx context.Context, id string) (*CookieRow, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, ErrCookiesNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memCookieStore) DeleteCookies(ctx context.Context, id string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return ErrCookiesNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memCookieStore) ListCookies(ctx context.Context, limit int) ([]*CookieRow, error) {
	_ = ctx
	m.mu.RLock()
	out := make([]*CookieRow, 0, len(m.rows))
	for _, row := range m.rows {
		cp := *row
		out = append(out, &cp)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
