package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the cache service.
// It merges file defaults and environment overrides to support both local
// and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	CacheEnabled   bool
	CacheNamespace string
	CacheOpTimeout time.Duration
	DefaultTTL     time.Duration
	MemoryMaxKeys  int

	JWTSecret         string
	AllowEphemeralJWT bool

	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string

	TargetHitRate  float64
	MinOperations  int64
	IdempotencyTTL time.Duration

	QueuePollInterval time.Duration
	QueueBatchSize    int
	QueueClaimTTL     time.Duration

	DeferredDelay        time.Duration
	DeferredMaxAttempts  int
	DeferredBackoffDelay time.Duration

	WarmupGraceDelay       time.Duration
	WarmupInterval         time.Duration
	WarmupBatchSize        int
	WarmupBatchDelay       time.Duration
	LightWarmupInterval    time.Duration
	LightWarmupMinPriority int

	SweepInterval time.Duration

	MaxDBConns int32
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"dependencies"`
	Cache struct {
		Enabled           *bool   `yaml:"enabled"`
		Namespace         string  `yaml:"namespace"`
		TargetHitRate     float64 `yaml:"target_hit_rate"`
		DefaultTTLMinutes int     `yaml:"default_ttl_minutes"`
	} `yaml:"cache"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:              "orderdesk-cache",
		HTTPPort:               8080,
		GRPCPort:               9090,
		CacheEnabled:           true,
		CacheNamespace:         "orderdesk",
		CacheOpTimeout:         2 * time.Second,
		DefaultTTL:             5 * time.Minute,
		MemoryMaxKeys:          10000,
		AllowEphemeralJWT:      true,
		KafkaTopic:             "orderdesk.entity-changes",
		KafkaConsumerGroup:     "orderdesk-cache-invalidation",
		TargetHitRate:          0.8,
		MinOperations:          100,
		IdempotencyTTL:         24 * time.Hour,
		QueuePollInterval:      time.Second,
		QueueBatchSize:         50,
		QueueClaimTTL:          30 * time.Second,
		DeferredDelay:          100 * time.Millisecond,
		DeferredMaxAttempts:    3,
		DeferredBackoffDelay:   2 * time.Second,
		WarmupGraceDelay:       5 * time.Second,
		WarmupInterval:         30 * time.Minute,
		WarmupBatchSize:        3,
		WarmupBatchDelay:       200 * time.Millisecond,
		LightWarmupInterval:    10 * time.Minute,
		LightWarmupMinPriority: 7,
		SweepInterval:          5 * time.Minute,
		MaxDBConns:             20,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Dependencies.KafkaTopic != "" {
			cfg.KafkaTopic = f.Dependencies.KafkaTopic
		}
		if f.Cache.Enabled != nil {
			cfg.CacheEnabled = *f.Cache.Enabled
		}
		if f.Cache.Namespace != "" {
			cfg.CacheNamespace = f.Cache.Namespace
		}
		if f.Cache.TargetHitRate > 0 {
			cfg.TargetHitRate = f.Cache.TargetHitRate
		}
		if f.Cache.DefaultTTLMinutes > 0 {
			cfg.DefaultTTL = time.Duration(f.Cache.DefaultTTLMinutes) * time.Minute
		}
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.CacheEnabled = envBool("CACHE_ENABLED", cfg.CacheEnabled)
	cfg.CacheNamespace = envOrDefault("CACHE_NAMESPACE", cfg.CacheNamespace)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MemoryMaxKeys = envInt("MEMORY_MAX_KEYS", cfg.MemoryMaxKeys)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.MinOperations = int64(envInt("MIN_OPERATIONS", int(cfg.MinOperations)))
	cfg.QueueBatchSize = envInt("QUEUE_BATCH_SIZE", cfg.QueueBatchSize)
	cfg.DeferredMaxAttempts = envInt("DEFERRED_MAX_ATTEMPTS", cfg.DeferredMaxAttempts)
	cfg.WarmupBatchSize = envInt("WARMUP_BATCH_SIZE", cfg.WarmupBatchSize)
	cfg.LightWarmupMinPriority = envInt("LIGHT_WARMUP_MIN_PRIORITY", cfg.LightWarmupMinPriority)

	if rate := envFloat("TARGET_HIT_RATE", cfg.TargetHitRate); rate > 0 && rate <= 1 {
		cfg.TargetHitRate = rate
	}

	cfg.CacheOpTimeout = time.Duration(envInt("CACHE_OP_TIMEOUT_MS", int(cfg.CacheOpTimeout.Milliseconds()))) * time.Millisecond
	cfg.DefaultTTL = time.Duration(envInt("DEFAULT_TTL_MINUTES", int(cfg.DefaultTTL.Minutes()))) * time.Minute
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.QueuePollInterval = time.Duration(envInt("QUEUE_POLL_MS", int(cfg.QueuePollInterval.Milliseconds()))) * time.Millisecond
	cfg.QueueClaimTTL = time.Duration(envInt("QUEUE_CLAIM_TTL_SECONDS", int(cfg.QueueClaimTTL.Seconds()))) * time.Second
	cfg.DeferredDelay = time.Duration(envInt("DEFERRED_DELAY_MS", int(cfg.DeferredDelay.Milliseconds()))) * time.Millisecond
	cfg.DeferredBackoffDelay = time.Duration(envInt("DEFERRED_BACKOFF_MS", int(cfg.DeferredBackoffDelay.Milliseconds()))) * time.Millisecond
	cfg.WarmupGraceDelay = time.Duration(envInt("WARMUP_GRACE_SECONDS", int(cfg.WarmupGraceDelay.Seconds()))) * time.Second
	cfg.WarmupInterval = time.Duration(envInt("WARMUP_INTERVAL_MINUTES", int(cfg.WarmupInterval.Minutes()))) * time.Minute
	cfg.WarmupBatchDelay = time.Duration(envInt("WARMUP_BATCH_DELAY_MS", int(cfg.WarmupBatchDelay.Milliseconds()))) * time.Millisecond
	cfg.LightWarmupInterval = time.Duration(envInt("LIGHT_WARMUP_INTERVAL_MINUTES", int(cfg.LightWarmupInterval.Minutes()))) * time.Minute
	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_MINUTES", int(cfg.SweepInterval.Minutes()))) * time.Minute

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" && cfg.CacheEnabled {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.JWTSecret == "" && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_SECRET")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
