package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/media-platform/services/refresher/internal/publisher"
)

// Run modes.
const (
	ModeServe = "serve"
	ModeOnce  = "once"
)

type Config struct {
	RunMode      string
	GRPCAddr     string
	DatabaseURL  string
	RedisURL     string
	NATSURL      string
	TimeZone     *time.Location
	ScheduleTick time.Duration
	LockTTL      time.Duration
	EmptyPolicy  string

	TMDBAPIKey       string
	TMDBBaseURL      string
	TMDBLanguage     string
	TMDBRegion       string
	TMDBTimeout      time.Duration
	TMDBRequestDelay time.Duration

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	GeminiTimeout time.Duration

	TriggerJWTSecret   string
	CollectionCacheTTL time.Duration

	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

func Load() (Config, error) {
	cfg := Config{
		RunMode:          strings.ToLower(envStr("RUN_MODE", ModeServe)),
		GRPCAddr:         envStr("GRPC_ADDR", ":9096"),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		RedisURL:         envStr("REDIS_URL", ""),
		NATSURL:          envStr("NATS_URL", ""),
		ScheduleTick:     envDuration("SCHEDULE_TICK", time.Hour),
		LockTTL:          envDuration("LOCK_TTL", 30*time.Minute),
		EmptyPolicy:      strings.ToLower(envStr("EMPTY_RESULT_POLICY", publisher.EmptyPublish)),
		TMDBAPIKey:       envStr("TMDB_API_KEY", ""),
		TMDBBaseURL:      envStr("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBLanguage:     envStr("TMDB_LANGUAGE", "pt-BR"),
		TMDBRegion:       envStr("TMDB_REGION", "BR"),
		TMDBTimeout:      envDuration("TMDB_TIMEOUT", 10*time.Second),
		TMDBRequestDelay: envDuration("TMDB_REQUEST_DELAY", 250*time.Millisecond),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		GeminiModel:      envStr("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:    envStr("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiTimeout:    envDuration("GEMINI_TIMEOUT", 120*time.Second),

		TriggerJWTSecret:   envStr("TRIGGER_JWT_SECRET", ""),
		CollectionCacheTTL: envDuration("COLLECTION_CACHE_TTL", 5*time.Minute),

		CBMaxRequests:      uint32(envInt("CB_MAX_REQUESTS", 1)),
		CBInterval:         envDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:          envDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold: uint32(envInt("CB_FAILURE_THRESHOLD", 5)),
	}

	if cfg.TMDBAPIKey == "" {
		return Config{}, errors.New("TMDB_API_KEY is required")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}
	if cfg.RunMode != ModeServe && cfg.RunMode != ModeOnce {
		return Config{}, fmt.Errorf("RUN_MODE must be %q or %q, got %q", ModeServe, ModeOnce, cfg.RunMode)
	}
	if cfg.EmptyPolicy != publisher.EmptyPublish && cfg.EmptyPolicy != publisher.EmptyKeepLastGood {
		return Config{}, fmt.Errorf("EMPTY_RESULT_POLICY must be %q or %q, got %q", publisher.EmptyPublish, publisher.EmptyKeepLastGood, cfg.EmptyPolicy)
	}

	tz := envStr("REFRESH_TIMEZONE", "America/Sao_Paulo")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("REFRESH_TIMEZONE %q: %w", tz, err)
	}
	cfg.TimeZone = loc
	return cfg, nil
}

func envStr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
