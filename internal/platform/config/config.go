package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration sourced from the environment.
type Server struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
}

// RedisConfig holds connection settings for the lane read-model cache.
// An empty URL disables caching entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LaneCacheTTL time.Duration
}

// KafkaConfig holds settings for the audit outbox publisher.
// Empty brokers disable publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("BOARDKIT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	cfg := Server{
		Addr:        addr,
		DatabaseURL: os.Getenv("BOARDKIT_DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("BOARDKIT_REDIS_URL"),
			PoolSize:     envInt("BOARDKIT_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("BOARDKIT_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("BOARDKIT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("BOARDKIT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("BOARDKIT_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LaneCacheTTL: envDuration("BOARDKIT_LANE_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Topic: os.Getenv("BOARDKIT_AUDIT_TOPIC"),
		},
	}
	if brokers := os.Getenv("BOARDKIT_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "board.audit"
	}
	return cfg
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}
