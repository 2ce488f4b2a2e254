// Package config is centralized process configuration. Infra values live
// here; builders receive typed config rather than reading the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries everything the coordinator binary needs.
type Config struct {
	ServiceName  string
	SubscriberID string

	// Transport. NATSURL selects the JetStream broker; with an empty
	// NATSURL and a RedisAddr set, the Redis pub/sub broker is used.
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PostgresDSN selects the externally backed aggregate store and dead
	// letter log; empty means in-memory.
	PostgresDSN string

	DedupWindow int

	StallAfter        time.Duration
	FailAfter         time.Duration
	Retention         time.Duration
	SweepInterval     time.Duration
	ReconcileInterval time.Duration

	PublishMaxElapsed time.Duration
	PublishMaxTries   int
}

// Load reads configuration from the environment, with defaults suited to a
// local run.
func Load() (Config, error) {
	cfg := Config{
		ServiceName:  envString("SERVICE_NAME", "pipeline-coordinator"),
		SubscriberID: envString("SUBSCRIBER_ID", "pipeline-coordinator"),

		NATSURL:       os.Getenv("NATS_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.DedupWindow, err = envInt("DEDUP_WINDOW", 128); err != nil {
		return Config{}, err
	}
	if cfg.PublishMaxTries, err = envInt("PUBLISH_MAX_TRIES", 8); err != nil {
		return Config{}, err
	}

	for _, item := range []struct {
		name     string
		fallback time.Duration
		target   *time.Duration
	}{
		{"STALL_AFTER", 30 * time.Minute, &cfg.StallAfter},
		{"FAIL_AFTER", 2 * time.Hour, &cfg.FailAfter},
		{"RETENTION", 24 * time.Hour, &cfg.Retention},
		{"SWEEP_INTERVAL", 1 * time.Minute, &cfg.SweepInterval},
		{"RECONCILE_INTERVAL", 30 * time.Second, &cfg.ReconcileInterval},
		{"PUBLISH_MAX_ELAPSED", 1 * time.Minute, &cfg.PublishMaxElapsed},
	} {
		if *item.target, err = envDuration(item.name, item.fallback); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return parsed, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return parsed, nil
}
