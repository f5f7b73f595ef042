package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	// 内嵌建表（避免忘了执行 schema.sql）
	const ddlCookies = `
CREATE TABLE IF NOT EXISTS xhs_cookies (
  cookie_id CHAR(64) NOT NULL COMMENT 'sm3 of sorted name=value pairs',
  a1 VARCHAR(128) NOT NULL COMMENT 'cookie a1 (session identity)',
  xsecappid VARCHAR(64) NOT NULL COMMENT 'cookie xsecappid (platform)',
  web_build VARCHAR(32) NOT NULL DEFAULT '' COMMENT 'cookie webBuild',
  raw_json MEDIUMTEXT NOT NULL COMMENT 'J2TEAMS export',
  expires_at TIMESTAMP NULL DEFAULT NULL COMMENT 'Earliest cookie expiry',
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP COMMENT 'Create time',
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP COMMENT 'Update time',
  PRIMARY KEY (cookie_id),
  KEY idx_a1 (a1) COMMENT 'Lookup by a1',
  KEY idx_expires_at (expires_at) COMMENT 'Find expired sets'
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci COMMENT='Imported cookie sets for signing';`

	if _, err := r.db.ExecContext(ctx, ddlCookies); err != nil {
		return err
	}
	// 兼容老库：补 web_build（忽略重复列错误）
	if _, err := r.db.ExecContext(ctx, `ALTER TABLE xhs_cookies ADD COLUMN web_build VARCHAR(32) NOT NULL DEFAULT '' COMMENT 'cookie webBuild'`); err != nil {
		// MySQL duplicate column name: Error 1060
		if !strings.Contains(err.Error(), "Duplicate column name") {
			return err
		}
	}
	return nil
}

// UpsertCookies 同一组 cookie 重复导入时只更新签名字段和原文
func (r *Repo) UpsertCookies(ctx context.Context, row *CookieRow) error {
	const q = `
INSERT INTO xhs_cookies (cookie_id, a1, xsecappid, web_build, raw_json, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  a1 = VALUES(a1),
  xsecappid = VALUES(xsecappid),
  web_build = VALUES(web_build),
  raw_json = VALUES(raw_json),
  expires_at = VALUES(expires_at)
`
	_, err := r.db.ExecContext(ctx, q, row.ID, row.A1, row.Platform, row.WebBuild, row.Raw, nullTime(row.ExpiresAt))
	return err
}

const cookieColumns = `cookie_id, a1, xsecappid, web_build, raw_json, expires_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCookieRow(s scanner) (*CookieRow, error) {
	var c CookieRow
	var exp sql.NullTime
	if err := s.Scan(&c.ID, &c.A1, &c.Platform, &c.WebBuild, &c.Raw, &exp, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if exp.Valid {
		t := exp.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

func (r *Repo) GetCookies(ctx context.Context, id string) (*CookieRow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cookieColumns+` FROM xhs_cookies WHERE cookie_id = ?`, id)
	c, err := scanCookieRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCookiesNotFound
	}
	return c, err
}

func (r *Repo) DeleteCookies(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM xhs_cookies WHERE cookie_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCookiesNotFound
	}
	return nil
}

func (r *Repo) ListCookies(ctx context.Context, limit int) ([]*CookieRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+cookieColumns+` FROM xhs_cookies ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CookieRow
	for rows.Next() {
		c, err := scanCookieRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 3*time.Second)
}
