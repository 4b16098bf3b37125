package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.LeaseDurationMs != 30_000 || cfg.MaxRetries != 3 || cfg.MaxStorageBytes != 1<<20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.AutoDrain() {
		t.Fatalf("processOnEnqueue should default to true")
	}
	if cfg.MaxRecordAge().Hours() != 7*24 {
		t.Fatalf("maxRecordAge default: %v", cfg.MaxRecordAge())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	body := `{"queueName":"telemetry","maxRetries":5,"processOnEnqueue":false,"multiInstanceMode":"leader"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueName != "telemetry" || cfg.MaxRetries != 5 || cfg.AutoDrain() {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MultiInstanceMode != ModeLeader {
		t.Fatalf("mode: %q", cfg.MultiInstanceMode)
	}
	// untouched fields keep defaults
	if cfg.LeaseDurationMs != 30_000 {
		t.Fatalf("leaseDurationMs should keep default, got %d", cfg.LeaseDurationMs)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "queueName: telemetry\nmaxStorageBytes: 2048\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueName != "telemetry" || cfg.MaxStorageBytes != 2048 || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DQ_MAX_RETRIES", "9")
	t.Setenv("DQ_LEASE_DURATION_MS", "1234")
	t.Setenv("DQ_PROCESS_ON_ENQUEUE", "false")
	t.Setenv("DQ_MULTI_INSTANCE_MODE", "disabled")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.MaxRetries != 9 || cfg.LeaseDurationMs != 1234 || cfg.AutoDrain() {
		t.Fatalf("env overlay failed: %+v", cfg)
	}
	if cfg.MultiInstanceMode != ModeDisabled {
		t.Fatalf("mode: %q", cfg.MultiInstanceMode)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.MultiInstanceMode = "quorum"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for bad mode")
	}
	cfg = Default()
	cfg.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for bad backend")
	}
}
