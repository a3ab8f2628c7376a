package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

var _ Transport = (*CLITransport)(nil)

// runner executes a program and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CLITransport drives the adb binary. The adb server it spawns keeps the
// TCP sessions, so one CLITransport can be shared by every device.
type CLITransport struct {
	path   string
	logger *zap.Logger
	run    runner
}

// NewCLITransport returns a transport that invokes the adb binary at path
// ("adb" resolves through PATH).
func NewCLITransport(path string, logger *zap.Logger) *CLITransport {
	if path == "" {
		path = "adb"
	}
	return &CLITransport{path: path, logger: logger, run: execRunner}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// Connect runs "adb connect serial". adb exits 0 on most failures, so the
// outcome is read from its output.
func (t *CLITransport) Connect(ctx context.Context, serial string) error {
	out, err := t.exec(ctx, "connect", serial)
	if err != nil {
		return err
	}
	return classifyConnect(out)
}

// Disconnect runs "adb disconnect serial". Not being connected is not an error.
func (t *CLITransport) Disconnect(ctx context.Context, serial string) error {
	out, err := t.exec(ctx, "disconnect", serial)
	if err != nil && !strings.Contains(out, "no such device") {
		return err
	}
	return nil
}

// Shell runs command on the device and returns its output. A non-zero exit
// of the remote command is not an error (grep with no match is routine);
// only adb-level failures are.
func (t *CLITransport) Shell(ctx context.Context, serial, command string) (string, error) {
	out, err := t.exec(ctx, "-s", serial, "shell", command)
	if cerr := classifyDevice(out); cerr != nil {
		return "", cerr
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", err
	}
	return out, nil
}

// Pull copies remote from the device to local.
func (t *CLITransport) Pull(ctx context.Context, serial, remote, local string) error {
	out, err := t.exec(ctx, "-s", serial, "pull", remote, local)
	if cerr := classifyDevice(out); cerr != nil {
		return cerr
	}
	if err != nil {
		return fmt.Errorf("adb pull %s: %w: %s", remote, err, strings.TrimSpace(out))
	}
	return nil
}

func (t *CLITransport) exec(ctx context.Context, args ...string) (string, error) {
	raw, err := t.run(ctx, t.path, args...)
	out := string(raw)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			t.logger.Debug("adb exited non-zero",
				zap.Strings("args", args),
				zap.Int("code", exitErr.ExitCode()),
			)
			return out, err
		}
		return out, fmt.Errorf("run %s: %w", t.path, err)
	}
	return out, nil
}

func classifyConnect(out string) error {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "refused"):
		return ErrRefused
	case strings.Contains(lower, "no route to host"),
		strings.Contains(lower, "network is unreachable"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "host is down"):
		return ErrUnreachable
	case strings.Contains(lower, "timed out"):
		return ErrTimedOut
	case strings.Contains(lower, "failed to authenticate"), strings.Contains(lower, "unauthorized"):
		return ErrUnauthorized
	case strings.Contains(lower, "failed"),
		strings.Contains(lower, "cannot"),
		strings.Contains(lower, "unable"):
		return fmt.Errorf("adb connect: %s", strings.TrimSpace(out))
	case strings.Contains(lower, "connected to"):
		return nil
	}
	return fmt.Errorf("adb connect: unexpected output %q", strings.TrimSpace(out))
}

func classifyDevice(out string) error {
	lower := strings.ToLower(strings.TrimSpace(out))
	if !strings.HasPrefix(lower, "error:") && !strings.HasPrefix(lower, "adb: error:") {
		return nil
	}
	switch {
	case strings.Contains(lower, "unauthorized"):
		return ErrUnauthorized
	case strings.Contains(lower, "offline"), strings.Contains(lower, "not found"), strings.Contains(lower, "closed"):
		return ErrOffline
	}
	return fmt.Errorf("adb: %s", strings.TrimSpace(out))
}
