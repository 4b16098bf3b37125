package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/drainq/drainq/internal/queue"
	logpkg "github.com/drainq/drainq/pkg/log"
	"github.com/spf13/cobra"
)

// newEnqueueCommand constructs the `enqueue` subcommand. The payload comes
// from the argument, --data, or stdin.
func newEnqueueCommand(logger logpkg.Logger) *cobra.Command {
	enqueueCmd := &cobra.Command{
		Use:   "enqueue [payload]",
		Short: "Add a JSON record to the queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := resolvePayload(cmd, args)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			rec, err := rt.Orchestrator().Enqueue(cmd.Context(), payload)
			if err != nil {
				return err
			}
			rt.Orchestrator().Shutdown(cmd.Context())
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}
	enqueueCmd.Flags().String("data", "", "JSON payload (alternative to the positional argument)")
	return enqueueCmd
}

func resolvePayload(cmd *cobra.Command, args []string) (json.RawMessage, error) {
	var raw string
	if data, _ := cmd.Flags().GetString("data"); data != "" {
		raw = data
	} else if len(args) == 1 {
		raw = args[0]
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		raw = string(b)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty payload; pass an argument, --data, or pipe to stdin")
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("payload must be valid JSON")
	}
	return json.RawMessage(raw), nil
}

// newDrainCommand constructs the `drain` subcommand.
func newDrainCommand(logger logpkg.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Run one drain cycle and report how many records were delivered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			n, err := rt.Orchestrator().Drain(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "processed: %d\n", n)
			return nil
		},
	}
}

// newListCommand constructs the `list` subcommand with optional CEL filter.
func newListCommand(logger logpkg.Logger) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued records, oldest first",
		Long: `List queued records, oldest first.

The --filter expression is evaluated per record with these variables:
  id, enqueued_at_ms, age_ms, retry_count, last_attempt_ms, size, text,
  json (the parsed payload), now_ms

Example:
  drainq list --filter 'retry_count > 0 && json.event == "saved"'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			expr, _ := cmd.Flags().GetString("filter")
			filter, err := queue.NewFilter(expr)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			records, err := rt.Store().GetAll()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				if filter.Match(rec) {
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	listCmd.Flags().String("filter", "", "CEL expression selecting records")
	return listCmd
}

// newStatusCommand constructs the `status` subcommand.
func newStatusCommand(logger logpkg.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue summary and lease holder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			status, err := rt.Status(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

// newClearCommand constructs the `clear` subcommand.
func newClearCommand(logger logpkg.Logger) *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all queued records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.Store().Clear(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
	clearCmd.Flags().Bool("yes", false, "Confirm deletion")
	return clearCmd
}
