package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	logpkg "github.com/drainq/drainq/pkg/log"
)

// Multi-instance coordination modes.
const (
	ModeDisabled = "disabled" // no locking; assume a single instance
	ModeCompete  = "compete"  // every instance drains opportunistically
	ModeLeader   = "leader"   // standing drain timer while holding the lease
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// QueueName namespaces the queue, lease, and dead-letter keys.
	QueueName string `json:"queueName" yaml:"queueName"`
	// DataDir is where the kv backend keeps its state.
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Backend selects the kv backend: "pebble", "file", or "memory".
	Backend string `json:"backend" yaml:"backend"`

	LeaseDurationMs       int64  `json:"leaseDurationMs" yaml:"leaseDurationMs"`
	LeaseCheckIntervalMs  int64  `json:"leaseCheckIntervalMs" yaml:"leaseCheckIntervalMs"`
	LeaseAcquireTimeoutMs int64  `json:"leaseAcquireTimeoutMs" yaml:"leaseAcquireTimeoutMs"`
	MaxStorageBytes       int    `json:"maxStorageBytes" yaml:"maxStorageBytes"`
	MaxRetries            int    `json:"maxRetries" yaml:"maxRetries"`
	MaxRecordAgeMs        int64  `json:"maxRecordAgeMs" yaml:"maxRecordAgeMs"`
	ProcessOnEnqueue      *bool  `json:"processOnEnqueue" yaml:"processOnEnqueue"`
	MultiInstanceMode     string `json:"multiInstanceMode" yaml:"multiInstanceMode"`
	// DrainIntervalMs is the leader-mode standing drain period.
	DrainIntervalMs int64 `json:"drainIntervalMs" yaml:"drainIntervalMs"`
	// DeadLetter keeps exhausted records under the dead-letter key instead
	// of dropping them.
	DeadLetter bool `json:"deadLetter" yaml:"deadLetter"`

	// Command is the delivery executable; each record's payload is piped to
	// its stdin and exit 0 counts as delivered.
	Command          string   `json:"command" yaml:"command"`
	CommandArgs      []string `json:"commandArgs" yaml:"commandArgs"`
	CommandTimeoutMs int64    `json:"commandTimeoutMs" yaml:"commandTimeoutMs"`

	// HTTPAddr, when set, serves /v1/status, /v1/healthz, and /metrics in
	// daemon mode.
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`

	Log logpkg.Config `json:"log" yaml:"log"`
}

// Default returns built-in defaults.
func Default() Config {
	yes := true
	return Config{
		QueueName:             "events",
		Backend:               "pebble",
		LeaseDurationMs:       30_000,
		LeaseCheckIntervalMs:  5_000,
		LeaseAcquireTimeoutMs: 10_000,
		MaxStorageBytes:       1 << 20,
		MaxRetries:            3,
		MaxRecordAgeMs:        7 * 24 * int64(time.Hour/time.Millisecond),
		ProcessOnEnqueue:      &yes,
		MultiInstanceMode:     ModeCompete,
		DrainIntervalMs:       30_000,
		CommandTimeoutMs:      30_000,
		Log:                   logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) layered
// over defaults. An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects values the queue cannot run with.
func (c Config) Validate() error {
	switch c.MultiInstanceMode {
	case ModeDisabled, ModeCompete, ModeLeader:
	default:
		return fmt.Errorf("config: unknown multiInstanceMode %q", c.MultiInstanceMode)
	}
	switch c.Backend {
	case "pebble", "file", "memory":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.MaxStorageBytes <= 0 {
		return fmt.Errorf("config: maxStorageBytes must be positive")
	}
	if c.QueueName == "" {
		return fmt.Errorf("config: queueName is required")
	}
	return nil
}

// LeaseDuration returns leaseDurationMs as a duration.
func (c Config) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseDurationMs) * time.Millisecond
}

// LeaseCheckInterval returns leaseCheckIntervalMs as a duration.
func (c Config) LeaseCheckInterval() time.Duration {
	return time.Duration(c.LeaseCheckIntervalMs) * time.Millisecond
}

// LeaseAcquireTimeout returns leaseAcquireTimeoutMs as a duration.
func (c Config) LeaseAcquireTimeout() time.Duration {
	return time.Duration(c.LeaseAcquireTimeoutMs) * time.Millisecond
}

// MaxRecordAge returns maxRecordAgeMs as a duration.
func (c Config) MaxRecordAge() time.Duration {
	return time.Duration(c.MaxRecordAgeMs) * time.Millisecond
}

// CommandTimeout returns commandTimeoutMs as a duration.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

// DrainInterval returns drainIntervalMs as a duration.
func (c Config) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalMs) * time.Millisecond
}

// AutoDrain reports whether enqueue should trigger a drain.
func (c Config) AutoDrain() bool {
	return c.ProcessOnEnqueue == nil || *c.ProcessOnEnqueue
}
