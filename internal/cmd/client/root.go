package client

import (
	cfgpkg "github.com/drainq/drainq/internal/config"
	"github.com/drainq/drainq/internal/runtime"
	logpkg "github.com/drainq/drainq/pkg/log"
	"github.com/spf13/cobra"
)

// RegisterFlags attaches the shared configuration flags to the root command.
func RegisterFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (JSON or YAML)")
	pf.String("queue", "", "Queue name (overrides config)")
	pf.String("data-dir", "", "Data directory (overrides config)")
	pf.String("backend", "", "KV backend: pebble|file|memory (overrides config)")
	pf.String("mode", "", "Multi-instance mode: disabled|compete|leader (overrides config)")
	pf.String("command", "", "Delivery command; payloads are piped to its stdin (overrides config)")
}

// LoadConfig resolves configuration for a command: file, then DQ_* env, then
// flags, most specific last.
func LoadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("queue"); v != "" {
		cfg.QueueName = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend = v
	}
	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		cfg.MultiInstanceMode = v
	}
	if v, _ := cmd.Flags().GetString("command"); v != "" {
		cfg.Command = v
	}
	return cfg, cfg.Validate()
}

func openRuntime(cmd *cobra.Command, logger logpkg.Logger) (*runtime.Runtime, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return runtime.Open(runtime.Options{Config: cfg, Logger: logger})
}

// AddCommands registers the queue operation commands on the root.
func AddCommands(root *cobra.Command, logger logpkg.Logger) {
	root.AddCommand(
		newEnqueueCommand(logger),
		newDrainCommand(logger),
		newListCommand(logger),
		newStatusCommand(logger),
		newClearCommand(logger),
		newDLQCommand(logger),
	)
}
