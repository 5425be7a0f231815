package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// maxStderrExcerpt bounds the tool output copied into error logs.
const maxStderrExcerpt = 512

// Output is what an external tool produced.
type Output struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Runner launches a command. A non-zero exit is reported through
// Output.ExitCode with a nil error; the error is reserved for commands that
// could not be started or did not finish (context expiry).
type Runner interface {
	Run(ctx context.Context, cmd *Command) (*Output, error)
}

// ExternalToolError reports a failed tool invocation. It never carries
// argument values or tool output.
type ExternalToolError struct {
	Operation string
	ExitCode  int
	Err       error
}

func (e *ExternalToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("operation failed during %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("operation failed during %s (exit code %d)", e.Operation, e.ExitCode)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// Executor runs commands through a Runner and logs them with secrets
// redacted.
type Executor struct {
	runner Runner
	logger *slog.Logger
}

// NewExecutor returns an Executor. A nil runner uses ProcessRunner and a nil
// logger uses slog.Default.
func NewExecutor(runner Runner, logger *slog.Logger) *Executor {
	if runner == nil {
		runner = ProcessRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runner: runner, logger: logger}
}

// Execute runs cmd and returns its output. operation labels the pipeline
// stage in logs and errors. A non-zero exit returns *ExternalToolError.
func (e *Executor) Execute(ctx context.Context, cmd *Command, operation string) (*Output, error) {
	e.logger.InfoContext(ctx, "executing command", "operation", operation, "command", cmd.String())

	out, err := e.runner.Run(ctx, cmd)
	if err != nil {
		code := -1
		if out != nil {
			code = out.ExitCode
		}
		e.logger.ErrorContext(ctx, "command did not complete",
			"operation", operation, "tool", cmd.Tool, "error", cmd.Scrub(err.Error()))
		return out, &ExternalToolError{Operation: operation, ExitCode: code, Err: err}
	}

	if out.ExitCode != 0 {
		e.logger.ErrorContext(ctx, "command failed",
			"operation", operation, "tool", cmd.Tool, "exit_code", out.ExitCode,
			"stderr", excerpt(cmd.Scrub(string(out.Stderr))))
		return out, &ExternalToolError{Operation: operation, ExitCode: out.ExitCode}
	}

	e.logger.DebugContext(ctx, "command completed", "operation", operation, "duration", out.Duration)
	return out, nil
}

// excerpt trims tool output to a single bounded log field.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrExcerpt {
		s = s[:maxStderrExcerpt] + "..."
	}
	return s
}

// ProcessRunner runs commands as child processes without a shell.
type ProcessRunner struct {
	// WaitDelay bounds how long Run waits for I/O after the context expires
	// and the process is killed. Zero means one second.
	WaitDelay time.Duration
}

// Run implements Runner.
func (r ProcessRunner) Run(ctx context.Context, cmd *Command) (*Output, error) {
	c := exec.CommandContext(ctx, cmd.Tool, cmd.Argv()...)
	c.Dir = cmd.Dir
	c.WaitDelay = r.WaitDelay
	if c.WaitDelay == 0 {
		c.WaitDelay = time.Second
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	out := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.ExitCode = -1
		return out, fmt.Errorf("running %s: %w", cmd.Tool, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		out.ExitCode = -1
		return out, fmt.Errorf("starting %s: %w", cmd.Tool, err)
	}
}
