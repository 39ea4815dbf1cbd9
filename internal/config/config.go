package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// HTTP
	HTTPPort string

	// TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Retention and rollups
	RetentionDays        int
	PruneIntervalHours   int
	AggregateIntervalMin int

	// Caches
	LatestTTLSeconds     int
	ParamCacheTTLSeconds int

	// Auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string
}

func Load() *Config {
	return &Config{
		HTTPPort:             getEnv("HTTP_PORT", "8001"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "livelink_user"),
		DBPassword:           getEnv("DB_PASSWORD", "livelink_password"),
		DBName:               getEnv("DB_NAME", "livelink"),
		DBMaxConns:           int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RetentionDays:        getEnvInt("RETENTION_DAYS", 90),
		PruneIntervalHours:   getEnvInt("PRUNE_INTERVAL_HOURS", 6),
		AggregateIntervalMin: getEnvInt("AGGREGATE_INTERVAL_MIN", 30),
		LatestTTLSeconds:     getEnvInt("LATEST_TTL_SECONDS", 0),
		ParamCacheTTLSeconds: getEnvInt("PARAM_CACHE_TTL_SECONDS", 60),
		AuthCacheTTLSeconds:  getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:         strings.Split(getEnv("VALID_API_KEYS", ""), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
