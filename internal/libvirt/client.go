package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocketPath is the qemu:///system daemon socket.
	DefaultSocketPath = "/var/run/libvirt/libvirt-sock"

	// DefaultTimeout bounds the socket dial.
	DefaultTimeout = 5 * time.Second
)

// Client wraps a go-libvirt connection.
type Client struct {
	libvirt *libvirt.Libvirt
}

// Connect establishes a connection to the local libvirt daemon.
// It returns a Client that must be closed via Close() when done.
//
// An empty socketPath means DefaultSocketPath; a zero timeout means
// DefaultTimeout.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l}, nil
}

// ConnectWithContext establishes a connection with context support for cancellation.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		// Release a connection that completes after we stop waiting
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close closes the libvirt connection. It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	err := c.libvirt.Disconnect()
	c.libvirt = nil
	if err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying go-libvirt client.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Ping verifies the connection is still alive.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// Version describes the daemon a Client is connected to.
type Version struct {
	Major, Minor, Patch uint64
	Hostname            string
	URI                 string
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Describe reports the libvirt version, hypervisor hostname, and URI.
func (c *Client) Describe() (Version, error) {
	if c.libvirt == nil {
		return Version{}, fmt.Errorf("client not connected")
	}

	// libvirt encodes 8.6.0 as 8006000
	raw, err := c.libvirt.ConnectGetLibVersion()
	if err != nil {
		return Version{}, fmt.Errorf("failed to get libvirt version: %w", err)
	}
	hostname, err := c.libvirt.ConnectGetHostname()
	if err != nil {
		return Version{}, fmt.Errorf("failed to get hostname: %w", err)
	}
	uri, err := c.libvirt.ConnectGetUri()
	if err != nil {
		return Version{}, fmt.Errorf("failed to get connection URI: %w", err)
	}

	return Version{
		Major:    raw / 1000000,
		Minor:    (raw % 1000000) / 1000,
		Patch:    raw % 1000,
		Hostname: hostname,
		URI:      uri,
	}, nil
}
