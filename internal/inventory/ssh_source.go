package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jbweber/vmwatch/internal/sshutil"
)

// remoteRunner runs one command on a remote host. It exists so tests can
// replace the SSH transport.
type remoteRunner func(ctx context.Context, target sshutil.Target, cmd string) (stdout, stderr string, err error)

// SSHSource runs the inventory command on a remote hypervisor host.
type SSHSource struct {
	Target sshutil.Target

	// Command is the remote command line. Defaults to "xe vm-list".
	Command string

	// Timeout bounds dial plus command. Zero means DefaultCommandTimeout.
	Timeout time.Duration

	run remoteRunner
}

// NewSSHSource returns an SSHSource using the real SSH transport.
func NewSSHSource(target sshutil.Target, command string, timeout time.Duration) *SSHSource {
	return &SSHSource{Target: target, Command: command, Timeout: timeout, run: runOverSSH}
}

// Fetch dials the host, runs the command, and closes the connection.
func (s *SSHSource) Fetch(ctx context.Context) (string, error) {
	command := s.Command
	if command == "" {
		command = "xe vm-list"
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = DefaultCommandTimeout
	}
	run := s.run
	if run == nil {
		run = runOverSSH
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	origin := fmt.Sprintf("%s on %s", command, s.Target.Addr())
	stdout, stderr, err := run(ctx, s.Target, command)
	if err != nil {
		msg := "failed to run " + origin
		if detail := strings.TrimSpace(stderr); detail != "" {
			msg += ": " + detail
		}
		return "", inputError(msg, err)
	}

	return checkReport(stdout, origin)
}

func runOverSSH(ctx context.Context, target sshutil.Target, cmd string) (string, string, error) {
	client, err := sshutil.Dial(ctx, target)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = client.Close() }()

	return sshutil.Run(ctx, client, cmd)
}
