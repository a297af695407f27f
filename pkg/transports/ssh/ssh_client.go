package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client is an SSH connection to one instance.
type Client struct {
	config *Config

	mu          sync.Mutex
	client      *ssh.Client
	connectedAt time.Time
}

// Dial connects to the instance described by config. Network failures are
// reported as temporary TransportErrors so that callers can retry them.
func Dial(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, &TransportError{Op: "connect", Host: config.Address(), Err: fmt.Errorf("invalid config: %w", err)}
	}

	clientConfig, err := config.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Host: config.Address(), Err: err, IsAuthError: true}
	}

	address := config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	dialer := net.Dialer{Timeout: config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, dialError(ctx, address, err)
	}

	// The handshake does not observe ctx, so bound it with a deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(config.ConnectionTimeout))
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, dialError(ctx, address, err)
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug().Str("address", address).Msg("SSH connection established")

	return &Client{
		config:      config,
		client:      ssh.NewClient(ncc, chans, reqs),
		connectedAt: time.Now(),
	}, nil
}

// dialError classifies a connection failure. Authentication failures stay
// retryable: cloud-init may not have installed the key yet.
func dialError(ctx context.Context, address string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &TransportError{Op: "connect", Host: address, Err: ctxErr}
	}
	return &TransportError{
		Op:          "connect",
		Host:        address,
		Err:         err,
		IsTemporary: true,
		IsAuthError: strings.Contains(err.Error(), "unable to authenticate"),
	}
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return &TransportError{Op: "disconnect", Host: c.config.Address(), Err: err}
	}
	return nil
}

// Address returns the remote host:port.
func (c *Client) Address() string {
	return c.config.Address()
}

// getClient returns the underlying SSH client.
func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, &TransportError{Op: "session", Host: c.config.Address(), Err: errors.New("not connected")}
	}
	return c.client, nil
}
