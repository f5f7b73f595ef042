package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr    string `env:"API_ADDR"`
	APIHost string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort int    `env:"API_PORT" envDefault:"8080"`

	// COOKIE_STORE=mysql 时才连库
	CookieStore string `env:"COOKIE_STORE" envDefault:"mysql"`
	DBHost      string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort      int    `env:"DB_PORT" envDefault:"3306"`
	DBUser      string `env:"DB_USER" envDefault:"root"`
	DBPass      string `env:"DB_PASSWORD" envDefault:"123456"`
	DBName      string `env:"DB_NAME" envDefault:"xhs_sign"`

	// mem | redis；redis 连接参数见 newRedisClient
	SessionStore  string `env:"SESSION_STORE" envDefault:"mem"`
	SessionTTLSec int    `env:"SESSION_TTL_SEC" envDefault:"7200"`
	SessionPrefix string `env:"REDIS_SESSION_PREFIX" envDefault:"xhs:session:"`

	RedisURL      string `env:"REDIS_URL"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisSSL      bool   `env:"REDIS_SSL"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"200"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"400"`

	// 管理接口密码：存放“明文密码的 MD5(hex小写)”
	AdminPasswordMD5 string `env:"ADMIN_PASSWORD_MD5"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	// API_ADDR 为空时用 API_HOST / API_PORT 组合
	if strings.TrimSpace(cfg.Addr) == "" {
		host := strings.TrimSpace(cfg.APIHost)
		if host == "" {
			host = "0.0.0.0"
		}
		cfg.Addr = fmt.Sprintf("%s:%d", host, cfg.APIPort)
	}
	cfg.AdminPasswordMD5 = strings.ToLower(strings.TrimSpace(cfg.AdminPasswordMD5))
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	cfg.CookieStore = strings.ToLower(strings.TrimSpace(cfg.CookieStore))
	if cfg.SessionTTLSec <= 0 {
		cfg.SessionTTLSec = 7200
	}
	return cfg, nil
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

func (c Config) MySQLDSN() string {
	// parseTime 用于扫描 TIMESTAMP；utf8mb4 避免字符集问题
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=Local",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName,
	)
}

// loadEnv 依次尝试 ENV_FILE、当前目录、仓库根目录的 .env.windows/.env.linux
func loadEnv() {
	if p := os.Getenv("ENV_FILE"); p != "" {
		if err := godotenv.Overload(p); err != nil {
			log.Printf("[env] load %s: %v", p, err)
			return
		}
		log.Printf("[env] loaded: %s", p)
		return
	}

	var candidates []string
	if runtime.GOOS == "windows" {
		candidates = []string{".env.windows", "env.windows", ".env"}
	} else {
		candidates = []string{".env.linux", "env.linux", ".env"}
	}

	for _, dir := range []string{".", ".."} {
		for _, p := range candidates {
			path := filepath.Join(dir, p)
			if fileExists(path) {
				_ = godotenv.Overload(path)
				log.Printf("[env] loaded: %s", path)
				return
			}
		}
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
