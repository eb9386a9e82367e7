package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// レコードストアのバックエンド
const (
	RecordStoreMemory   = "memory"
	RecordStorePostgres = "postgres"
	RecordStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database。空の場合はidentityとセッションをメモリ上に保持する
	DatabaseURL string

	// Identity
	SessionSecret     string
	ProjectID         string
	SessionMaxAge     time.Duration
	RecentLoginWindow time.Duration
	BcryptCost        int

	// Sign-in rate limit
	SignInRatePerMin int
	SignInBurst      int

	// Record Store
	RecordStore string
	RedisURL    string

	// Worker
	OrphanGracePeriod      time.Duration
	RepairInterval         time.Duration
	SessionCleanupInterval time.Duration
	WorkerMetricsPort      string // 空の場合はworkerのメトリクスを公開しない

	// Server
	ServerPort string

	// CORS。空の場合はCORSヘッダーを付与しない
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.ProjectID = getEnvString("PROJECT_ID", "directorio-local")
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour)
	cfg.RecentLoginWindow = getEnvDuration("RECENT_LOGIN_WINDOW", 5*time.Minute)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 0)
	cfg.SignInRatePerMin = getEnvInt("SIGNIN_RATE_PER_MIN", 10)
	cfg.SignInBurst = getEnvInt("SIGNIN_BURST", 5)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.OrphanGracePeriod = getEnvDuration("ORPHAN_GRACE_PERIOD", time.Hour)
	cfg.RepairInterval = getEnvDuration("REPAIR_INTERVAL", 15*time.Minute)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.WorkerMetricsPort = os.Getenv("WORKER_METRICS_PORT")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	defaultStore := RecordStoreMemory
	if cfg.DatabaseURL != "" {
		defaultStore = RecordStorePostgres
	}
	cfg.RecordStore = getEnvString("RECORD_STORE", defaultStore)

	switch cfg.RecordStore {
	case RecordStoreMemory:
	case RecordStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("RECORD_STORE=%s requires DATABASE_URL", cfg.RecordStore)
		}
	case RecordStoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("RECORD_STORE=%s requires REDIS_URL", cfg.RecordStore)
		}
	default:
		return nil, fmt.Errorf("unknown RECORD_STORE %q (want memory, postgres or redis)", cfg.RecordStore)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
