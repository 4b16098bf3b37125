package processor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drainq/drainq/internal/queue"
)

func testRecord(payload string) queue.Record {
	return queue.Record{
		ID:         "rec-1",
		EnqueuedAt: time.Now().UnixMilli(),
		Payload:    json.RawMessage(payload),
	}
}

func TestCommandExitZeroIsDelivered(t *testing.T) {
	c, err := NewCommand(CommandOptions{Path: "true"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ok, err := c.Process(context.Background(), testRecord(`{"a":1}`))
	if err != nil || !ok {
		t.Fatalf("process: %v %v", ok, err)
	}
}

func TestCommandNonZeroExitIsRetriable(t *testing.T) {
	c, err := NewCommand(CommandOptions{Path: "false"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ok, err := c.Process(context.Background(), testRecord(`{"a":1}`))
	if err != nil {
		t.Fatalf("non-zero exit must not be exceptional: %v", err)
	}
	if ok {
		t.Fatalf("non-zero exit must not count as delivered")
	}
}

func TestCommandReceivesPayloadOnStdin(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out")
	script := filepath.Join(dir, "sink.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\ncat > "+outFile+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	c, err := NewCommand(CommandOptions{Path: script})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	payload := `{"event":"saved","path":"/tmp/x"}`
	ok, err := c.Process(context.Background(), testRecord(payload))
	if err != nil || !ok {
		t.Fatalf("process: %v %v", ok, err)
	}
	got, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("read sink: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("stdin payload: %q", got)
	}
}

func TestCommandTimeoutIsRetriable(t *testing.T) {
	c, err := NewCommand(CommandOptions{Path: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	start := time.Now()
	ok, err := c.Process(context.Background(), testRecord(`1`))
	if err != nil {
		t.Fatalf("timeout must not be exceptional: %v", err)
	}
	if ok {
		t.Fatalf("timed-out delivery must not count as delivered")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestCommandReadiness(t *testing.T) {
	c, _ := NewCommand(CommandOptions{Path: "true"})
	if !c.Ready(context.Background()) {
		t.Fatalf("true should resolve on PATH")
	}
	missing, _ := NewCommand(CommandOptions{Path: "definitely-not-a-binary-7f3a"})
	if missing.Ready(context.Background()) {
		t.Fatalf("missing binary must report not ready")
	}
}

func TestCommandRequiresPath(t *testing.T) {
	if _, err := NewCommand(CommandOptions{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
