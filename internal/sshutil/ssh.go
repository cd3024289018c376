// Package sshutil dials hypervisor hosts over SSH for remote inventory
// commands and backup uploads.
package sshutil

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds the TCP dial and SSH handshake.
const DefaultTimeout = 10 * time.Second

// Target describes how to reach and authenticate to a host.
type Target struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string

	// KnownHostsPath verifies the host key. When empty, InsecureIgnoreHostKey
	// must be set explicitly.
	KnownHostsPath        string
	InsecureIgnoreHostKey bool

	Timeout time.Duration
}

// Addr returns host:port, defaulting the port to 22.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// ClientConfig builds the ssh client configuration for t.
func (t Target) ClientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if t.KeyPath != "" {
		key, err := os.ReadFile(t.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if t.Password != "" {
		auth = append(auth, ssh.Password(t.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no authentication methods available for %s", t.Addr())
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case t.KnownHostsPath != "":
		cb, err := knownhosts.New(t.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKey = cb
	case t.InsecureIgnoreHostKey:
		hostKey = ssh.InsecureIgnoreHostKey()
	default:
		return nil, fmt.Errorf("no host key verification configured for %s", t.Addr())
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &ssh.ClientConfig{
		User:            t.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// Dial opens an SSH connection to t. The context bounds the TCP dial.
func Dial(ctx context.Context, t Target) (*ssh.Client, error) {
	config, err := t.ClientConfig()
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.Addr(), err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, t.Addr(), config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to establish SSH session with %s: %w", t.Addr(), err)
	}

	return ssh.NewClient(c, chans, reqs), nil
}

// Run executes cmd on the remote host and returns its stdout and stderr.
// If ctx ends first the session is closed and ctx.Err() is returned.
func Run(ctx context.Context, client *ssh.Client, cmd string) (string, string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return stdout.String(), stderr.String(), ctx.Err()
	case err := <-done:
		return stdout.String(), stderr.String(), err
	}
}
