package config

import (
	"os"
	"strconv"
)

// FromEnv overlays DQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("DQ_QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("DQ_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DQ_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("DQ_MULTI_INSTANCE_MODE"); v != "" {
		cfg.MultiInstanceMode = v
	}
	if v := os.Getenv("DQ_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DQ_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DQ_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DQ_COMMAND"); v != "" {
		cfg.Command = v
	}
	envInt64(&cfg.CommandTimeoutMs, "DQ_COMMAND_TIMEOUT_MS")
	envInt64(&cfg.LeaseDurationMs, "DQ_LEASE_DURATION_MS")
	envInt64(&cfg.LeaseCheckIntervalMs, "DQ_LEASE_CHECK_INTERVAL_MS")
	envInt64(&cfg.LeaseAcquireTimeoutMs, "DQ_LEASE_ACQUIRE_TIMEOUT_MS")
	envInt64(&cfg.MaxRecordAgeMs, "DQ_MAX_RECORD_AGE_MS")
	envInt64(&cfg.DrainIntervalMs, "DQ_DRAIN_INTERVAL_MS")
	if v := os.Getenv("DQ_MAX_STORAGE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxStorageBytes = n
		}
	}
	if v := os.Getenv("DQ_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("DQ_PROCESS_ON_ENQUEUE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ProcessOnEnqueue = &b
		}
	}
	if v := os.Getenv("DQ_DEAD_LETTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DeadLetter = b
		}
	}
}

func envInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
