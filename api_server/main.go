package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xhs_sign/assets"
	"xhs_sign/headers"
)

func main() {
	loadEnv()
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// XHS_ASSETS_FILE 为空时用内嵌常量
	a, err := assets.FromEnv()
	if err != nil {
		log.Fatalf("load assets failed: %v", err)
	}
	signer, err := headers.NewSigner(a)
	if err != nil {
		log.Fatalf("signer init failed: %v", err)
	}
	log.Printf("[assets] version_x1=%s sign_svn=%s", signer.Assets().VersionX1, signer.Assets().SignSvn)

	var cookies CookieStore
	switch cfg.CookieStore {
	case "mem":
		cookies = newMemCookieStore()
	default:
		db, err := openDB(cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		repo := NewRepo(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = repo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatalf("ensure schema failed: %v", err)
		}
		cookies = repo
	}

	var sessions SessionStore
	switch cfg.SessionStore {
	case "redis":
		rs, err := newRedisSessionStore(cfg)
		if err != nil {
			log.Fatalf("redis init failed: %v", err)
		}
		sessions = rs
	default:
		// 进程内 TTL cache，多实例部署时改用 redis
		sessions = newMemSessionStore(cfg.SessionTTL())
	}
	defer sessions.Close()
	log.Printf("[store] cookies=%s sessions=%s ttl=%s", cfg.CookieStore, cfg.SessionStore, cfg.SessionTTL())

	srv := NewServer(cfg, signer, sessions, cookies)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Printf("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
