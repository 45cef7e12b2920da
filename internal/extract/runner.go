package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/timmy/recipe-ingest/internal/logger"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	entry := logger.With(logger.Fields{
		"cmd":                  name,
		"args":                 strings.Join(args, " "),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithField("stderr", truncate(errb.String(), 8<<10)).Error(ctx, "exec failed: %v", err)
	} else {
		entry.WithSize(out.Len()).Debug(ctx, "exec ok")
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
