package processor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/drainq/drainq/internal/queue"
	logpkg "github.com/drainq/drainq/pkg/log"
)

// Command delivers records by running an executable per record with the
// payload on stdin. Exit 0 counts as delivered; any non-zero exit is a
// retriable failure. Only failures to start the process at all are
// exceptional.
type Command struct {
	path    string
	args    []string
	timeout time.Duration
	log     logpkg.Logger
}

// CommandOptions configures a Command processor.
type CommandOptions struct {
	// Path is the executable to run for each record.
	Path string
	Args []string
	// Timeout bounds a single delivery. Default 30s.
	Timeout time.Duration
	Logger  logpkg.Logger
}

// NewCommand builds a Command processor.
func NewCommand(opts CommandOptions) (*Command, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("processor: CommandOptions.Path is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNop()
	}
	return &Command{
		path:    opts.Path,
		args:    opts.Args,
		timeout: opts.Timeout,
		log:     opts.Logger.With(logpkg.Component("processor")),
	}, nil
}

// Process runs the command once for the record. A non-zero exit or timeout
// reports (false, nil) so the record stays queued with its retry budget
// decremented by the caller.
func (c *Command) Process(ctx context.Context, rec queue.Record) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, c.path, c.args...)
	cmd.Stdin = bytes.NewReader(rec.Payload)
	cmd.Env = append(cmd.Environ(), "DRAINQ_RECORD_ID="+rec.ID)

	out, err := cmd.CombinedOutput()
	if err == nil {
		c.log.Debug("record delivered", logpkg.Str("id", rec.ID))
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || cctx.Err() != nil {
		c.log.Warn("delivery command failed",
			logpkg.Str("id", rec.ID),
			logpkg.Err(err),
			logpkg.Str("output", truncate(string(out), 512)))
		return false, nil
	}
	// The command could not be started at all; treat as exceptional.
	return false, err
}

// Ready reports whether the executable resolves. A missing binary pauses
// draining instead of burning retry budgets.
func (c *Command) Ready(context.Context) bool {
	_, err := exec.LookPath(c.path)
	return err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
