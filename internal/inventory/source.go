package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a single inventory command invocation.
const DefaultCommandTimeout = 30 * time.Second

// Source produces one raw inventory report per call.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// CommandSource runs a local command and returns its standard output.
type CommandSource struct {
	// Command is the program and its arguments. Defaults to `xe vm-list`.
	Command []string

	// Timeout bounds the command. Zero means DefaultCommandTimeout.
	Timeout time.Duration
}

// Fetch runs the command once.
func (s *CommandSource) Fetch(ctx context.Context) (string, error) {
	argv := s.Command
	if len(argv) == 0 {
		argv = []string{"xe", "vm-list"}
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("failed to run %s", strings.Join(argv, " "))
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			msg += ": " + detail
		}
		return "", inputError(msg, err)
	}

	return checkReport(stdout.String(), strings.Join(argv, " "))
}

// FileSource reads a previously captured report from disk.
type FileSource struct {
	Path string
}

// Fetch reads the file.
func (s *FileSource) Fetch(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", inputError(fmt.Sprintf("failed to read %s", s.Path), err)
	}
	return checkReport(string(data), s.Path)
}

// checkReport rejects reports that carry no content at all.
func checkReport(raw, origin string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", inputError(fmt.Sprintf("empty report from %s", origin), nil)
	}
	return raw, nil
}

// IsInputError reports whether err means the snapshot could not be obtained.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInput)
}
