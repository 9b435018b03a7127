// Package command runs external build tools (meson, cargo, git, objcopy,
// the linker) behind an injectable function type.
package command

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes name with args in dir and returns its standard output.
// A non-zero exit is reported as *Error carrying the tool's stderr.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Error is a failed external command.
type Error struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Exec is the Runner backed by os/exec.
func Exec(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	slog.Debug("running command", "name", name, "args", args, "dir", dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &Error{Name: name, Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}
