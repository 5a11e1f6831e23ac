// Package config loads cmd/walletd's settings from environment variables,
// with an optional YAML overlay for the monitor's per-task parameters
// (grounded on the teacher's pkg/config/config.go getEnv*/Load shape).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything cmd/walletd needs to wire a Wallet, its Storage
// Provider, and its Monitor.
type Config struct {
	// Storage Provider (spec.md §4.2)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds

	// Wallet identity (spec.md §4.1)
	StorageIdentityKey string // hex-encoded 32-byte root private key
	Network            string // "mainnet" or "testnet"
	Version            string

	// HTTP surface (spec.md §10 AMBIENT STACK)
	ListenAddr  string
	MetricsAddr string

	// Monitor (spec.md §4.6)
	MonitorCheckInterval     time.Duration
	PendingSignActionTTL     time.Duration
	ReorgCheckInterval       time.Duration
	CheckForProofsInterval   time.Duration
	CheckNoSendsInterval     time.Duration
	FailAbandonedInterval    time.Duration
	FailAbandonedGrace       time.Duration
	ReviewStatusInterval     time.Duration
	UnFailInterval           time.Duration
	SyncWhenIdleInterval     time.Duration
	SyncWhenIdleStaleAfter   time.Duration
	PurgeInterval            time.Duration
	PurgeSpentOutputsAge     time.Duration
	PurgeCompletedTxAge      time.Duration
	PurgeFailedTxAge         time.Duration
	PurgeMonitorEventsAgeDays int
}

// Load reads Config from environment variables, applying the same safe
// defaults the teacher's config.Load uses for non-secret settings.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),

		StorageIdentityKey: getEnv("STORAGE_IDENTITY_KEY", ""),
		Network:            getEnv("NETWORK", "mainnet"),
		Version:            getEnv("WALLET_VERSION", "1.0.0"),

		ListenAddr:  getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),

		MonitorCheckInterval:   getEnvDuration("MONITOR_CHECK_INTERVAL", time.Second),
		PendingSignActionTTL:   getEnvDuration("PENDING_SIGN_ACTION_TTL", 300*time.Second),
		ReorgCheckInterval:     getEnvDuration("REORG_CHECK_INTERVAL", time.Minute),
		CheckForProofsInterval: getEnvDuration("CHECK_FOR_PROOFS_INTERVAL", 30*time.Second),
		CheckNoSendsInterval:   getEnvDuration("CHECK_NO_SENDS_INTERVAL", time.Minute),
		FailAbandonedInterval:  getEnvDuration("FAIL_ABANDONED_INTERVAL", 5*time.Minute),
		FailAbandonedGrace:     getEnvDuration("FAIL_ABANDONED_GRACE", 5*time.Minute),
		ReviewStatusInterval:   getEnvDuration("REVIEW_STATUS_INTERVAL", 5*time.Minute),
		UnFailInterval:         getEnvDuration("UNFAIL_INTERVAL", 10*time.Minute),
		SyncWhenIdleInterval:   getEnvDuration("SYNC_WHEN_IDLE_INTERVAL", time.Minute),
		SyncWhenIdleStaleAfter: getEnvDuration("SYNC_WHEN_IDLE_STALE_AFTER", 10*time.Minute),

		PurgeInterval:             getEnvDuration("PURGE_INTERVAL", time.Hour),
		PurgeSpentOutputsAge:      getEnvDuration("PURGE_SPENT_OUTPUTS_AGE", 30*24*time.Hour),
		PurgeCompletedTxAge:       getEnvDuration("PURGE_COMPLETED_TX_AGE", 90*24*time.Hour),
		PurgeFailedTxAge:          getEnvDuration("PURGE_FAILED_TX_AGE", 7*24*time.Hour),
		PurgeMonitorEventsAgeDays: getEnvInt("PURGE_MONITOR_EVENTS_AGE_DAYS", 30),
	}

	if overlay := getEnv("WALLETD_CONFIG_FILE", ""); overlay != "" {
		if err := applyYAMLOverlay(cfg, overlay); err != nil {
			return nil, fmt.Errorf("apply config overlay %s: %w", overlay, err)
		}
	}

	return cfg, nil
}

// overlay is the subset of Config a YAML file may override; env vars remain
// the primary source (spec.md §10 AMBIENT STACK: "the env-var path remains
// primary, YAML is an additive override").
type overlay struct {
	MonitorCheckInterval   *time.Duration `yaml:"monitorCheckInterval"`
	ReorgCheckInterval     *time.Duration `yaml:"reorgCheckInterval"`
	CheckForProofsInterval *time.Duration `yaml:"checkForProofsInterval"`
	FailAbandonedGrace     *time.Duration `yaml:"failAbandonedGrace"`
	PurgeInterval          *time.Duration `yaml:"purgeInterval"`
}

func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return err
	}
	if o.MonitorCheckInterval != nil {
		cfg.MonitorCheckInterval = *o.MonitorCheckInterval
	}
	if o.ReorgCheckInterval != nil {
		cfg.ReorgCheckInterval = *o.ReorgCheckInterval
	}
	if o.CheckForProofsInterval != nil {
		cfg.CheckForProofsInterval = *o.CheckForProofsInterval
	}
	if o.FailAbandonedGrace != nil {
		cfg.FailAbandonedGrace = *o.FailAbandonedGrace
	}
	if o.PurgeInterval != nil {
		cfg.PurgeInterval = *o.PurgeInterval
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
