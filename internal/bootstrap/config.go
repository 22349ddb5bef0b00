package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"collabboard/internal/infra/setup"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	ServerPort string
	AppEnv     string // development / production
	LogLevel   string

	DB setup.DBConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	JWTSecret string

	RateLimitMax    int
	RateLimitWindow time.Duration

	PresenceGrace         time.Duration
	RoomSweepInterval     time.Duration
	RoomInactivityTimeout time.Duration
	StrokeLogCapacity     int
	SnapshotEvents        int
	EraseOwnStrokesOnly   bool
	ArchiveStrokes        bool

	WorkerConcurrency int
	CORSAllowedOrigin string
}

// LoadConfig 从环境变量加载配置，.env 文件存在时先加载它
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 允许只使用环境变量

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DB: setup.DBConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			Path:     getEnv("DB_PATH", "collabboard.db"),
		},
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:         getEnv("REDIS_KEY_PREFIX", "cb:"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}
	if cfg.PresenceGrace, err = getDuration("PRESENCE_GRACE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RoomSweepInterval, err = getDuration("ROOM_SWEEP_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RoomInactivityTimeout, err = getDuration("ROOM_INACTIVITY_TIMEOUT", time.Hour); err != nil {
		return nil, err
	}
	if cfg.StrokeLogCapacity, err = getInt("STROKE_LOG_CAPACITY", 100); err != nil {
		return nil, err
	}
	if cfg.SnapshotEvents, err = getInt("SNAPSHOT_EVENTS", 50); err != nil {
		return nil, err
	}
	if cfg.EraseOwnStrokesOnly, err = getBool("WHITEBOARD_ERASE_OWN_ONLY", false); err != nil {
		return nil, err
	}
	if cfg.ArchiveStrokes, err = getBool("WHITEBOARD_ARCHIVE", false); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = getInt("WORKER_CONCURRENCY", 10); err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.SnapshotEvents > cfg.StrokeLogCapacity {
		return nil, fmt.Errorf("SNAPSHOT_EVENTS (%d) must not exceed STROKE_LOG_CAPACITY (%d)", cfg.SnapshotEvents, cfg.StrokeLogCapacity)
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	cfg.DB.Debug = cfg.LogLevel == "debug"

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
