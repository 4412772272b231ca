package spack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/hgi-dev/spackbridge/internal/logfields"
)

// RunOptions controls a single process invocation.
type RunOptions struct {
	// Dir is the working directory; empty means inherit.
	Dir string
	// Timeout is the hard deadline for the process. Zero means no limit.
	Timeout time.Duration
}

// Runner spawns one OS process per call and captures its output. It never
// returns an error: every failure mode (spawn, timeout, non-zero exit) is
// folded into the ExecutionResult.
type Runner struct{}

// NewRunner creates a command runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes the argument vector and waits for completion.
func (r *Runner) Run(ctx context.Context, argv []string, opts RunOptions) ExecutionResult {
	if len(argv) == 0 {
		return ExecutionResult{ExitCode: -1, Stderr: "empty command"}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	slog.Debug("Running command", logfields.Command(strings.Join(argv, " ")), logfields.Path(opts.Dir))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	// Child processes of the build tool must die with it on cancellation.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecutionResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		result.ExitCode = 0
		result.Success = true
	case ctx.Err() == context.DeadlineExceeded:
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("command timed out after %s", opts.Timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: the binary is missing or not executable.
			result.ExitCode = -1
			result.Stderr = err.Error()
		}
	}

	if result.Success {
		slog.Debug("Command completed",
			logfields.Command(argv[0]),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	} else {
		slog.Error("Command failed",
			logfields.Command(strings.Join(argv, " ")),
			logfields.ExitCode(result.ExitCode),
			"stderr", truncate(result.Stderr, 2000))
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
