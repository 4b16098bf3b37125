package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clientcmd "github.com/drainq/drainq/internal/cmd/client"
	serverrun "github.com/drainq/drainq/internal/cmd/server"
	logpkg "github.com/drainq/drainq/pkg/log"
)

func main() {
	// .env values feed the DQ_* overlay; missing file is fine
	_ = godotenv.Load()

	level := os.Getenv("DQ_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "drainq",
		Short: "Durable shared event queue CLI",
		Long: "drainq queues JSON records in a store shared by multiple processes\n" +
			"and drains them to a delivery command under a best-effort lease.",
	}
	clientcmd.RegisterFlags(rootCmd)
	clientcmd.AddCommands(rootCmd, logger)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the drain daemon (periodic drains plus optional status HTTP)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := clientcmd.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("http"); addr != "" {
				cfg.HTTPAddr = addr
			}
			return serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg, Logger: logger})
		},
	}
	runCmd.Flags().String("http", "", "Status HTTP listen address (overrides config)")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
