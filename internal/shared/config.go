package shared

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	HTTPTimeout time.Duration
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	BackendBase string
	BackendKey  string
	BackendRPS  int

	ExtractorMode    string // http|openai
	ExtractorURL     string
	ExtractorKey     string
	OpenAIKey        string
	OpenAIModel      string
	OpenAIBaseURL    string
	ExtractorRPS     int
	ExtractTimeout   time.Duration
	RateLimitBackoff time.Duration

	FillThreshold   float64
	CatalogRefresh  time.Duration
	SyncWorkers     int
	DefaultTimezone string
	SessionIdleTTL  time.Duration
	TurnsPerMinute  int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := cast.ToIntE(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := cast.ToFloat64E(v); err == nil {
				return f
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric env value")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		HTTPTimeout: time.Duration(atoi("HTTP_TIMEOUT_SECONDS", 75)) * time.Second,
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/concierge?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 3600)) * time.Second,

		BackendBase: env("BACKEND_BASE_URL", "http://localhost:8081/api/v1"),
		BackendKey:  env("BACKEND_API_KEY", ""),
		BackendRPS:  atoi("BACKEND_RPS", 5),

		ExtractorMode:    env("EXTRACTOR_MODE", "http"),
		ExtractorURL:     env("EXTRACTOR_URL", "http://localhost:8082/extract"),
		ExtractorKey:     env("EXTRACTOR_API_KEY", ""),
		OpenAIKey:        env("OPENAI_API_KEY", ""),
		OpenAIModel:      env("OPENAI_MODEL", ""),
		OpenAIBaseURL:    env("OPENAI_BASE_URL", ""),
		ExtractorRPS:     atoi("EXTRACTOR_RPS", 2),
		ExtractTimeout:   time.Duration(atoi("EXTRACT_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimitBackoff: time.Duration(atoi("RATE_LIMIT_BACKOFF_MS", 1000)) * time.Millisecond,

		FillThreshold:   atof("FILL_THRESHOLD", 0.5),
		CatalogRefresh:  time.Duration(atoi("CATALOG_REFRESH_SECONDS", 300)) * time.Second,
		SyncWorkers:     atoi("SYNC_WORKERS", 4),
		DefaultTimezone: env("DEFAULT_TIMEZONE", ""),
		SessionIdleTTL:  time.Duration(atoi("SESSION_IDLE_MINUTES", 60)) * time.Minute,
		TurnsPerMinute:  atoi("TURNS_PER_MINUTE", 30),
	}
	if c.BackendKey == "" {
		log.Warn().Msg("BACKEND_API_KEY is empty")
	}
	switch c.ExtractorMode {
	case "openai":
		if c.OpenAIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY is empty")
		}
	default:
		if c.ExtractorKey == "" {
			log.Warn().Msg("EXTRACTOR_API_KEY is empty")
		}
	}
	return c
}

// Location resolves DefaultTimezone, falling back to the process default.
func (c Config) Location() *time.Location {
	if c.DefaultTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		log.Warn().Err(err).Str("tz", c.DefaultTimezone).Msg("unknown DEFAULT_TIMEZONE; using process default")
		return time.Local
	}
	return loc
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
