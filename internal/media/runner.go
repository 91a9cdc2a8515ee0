package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

const maxStderrBytes = 8 * 1024

// CommandFunc runs one external program and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandError describes a failed subprocess.
type CommandError struct {
	Name       string
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", e.Name, e.ExitCode, truncate(e.StderrTail, 512))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// pool bounds how many subprocesses run at once and applies a per-call
// timeout to each one.
type pool struct {
	slots   chan struct{}
	timeout time.Duration
	command CommandFunc
	log     logrus.FieldLogger
}

func newPool(size int, timeout time.Duration, command CommandFunc, log logrus.FieldLogger) *pool {
	if size < 1 {
		size = 1
	}
	if command == nil {
		command = execCommand
	}
	return &pool{
		slots:   make(chan struct{}, size),
		timeout: timeout,
		command: command,
		log:     log,
	}
}

func (p *pool) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := p.command(ctx, name, args...)
	entry := p.log.WithFields(logrus.Fields{
		"command":     name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("media command failed")
		return nil, err
	}
	entry.Debug("media command succeeded")
	return out, nil
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &CommandError{Name: name, ExitCode: exitCode, StderrTail: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
