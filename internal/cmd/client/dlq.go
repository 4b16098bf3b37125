package client

import (
	"encoding/json"
	"fmt"

	logpkg "github.com/drainq/drainq/pkg/log"
	"github.com/spf13/cobra"
)

// newDLQCommand constructs the `dlq` command group.
func newDLQCommand(logger logpkg.Logger) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Dead-letter operations (records that exhausted retries or aged out)",
	}
	dlqCmd.AddCommand(
		newDLQListCommand(logger),
		newDLQRequeueCommand(logger),
		newDLQClearCommand(logger),
	)
	return dlqCmd
}

func newDLQListCommand(logger logpkg.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			records, err := rt.Store().DeadLetters()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newDLQRequeueCommand(logger logpkg.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Move dead-lettered records back into the queue with a fresh retry budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			n, err := rt.Store().RequeueDeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "requeued: %d\n", n)
			return nil
		},
	}
}

func newDLQClearCommand(logger logpkg.Logger) *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all dead-lettered records",
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
			if err := rt.Store().ClearDeadLetters(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
	clearCmd.Flags().Bool("yes", false, "Confirm deletion")
	return clearCmd
}
