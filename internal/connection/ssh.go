package connection

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/aryankumar/drover/internal/inventory"
)

// DefaultSSHPort is used when neither the host nor its credentials carry a port
const DefaultSSHPort = 22

// defaultSSHTimeout bounds the TCP connect of a direct dial
const defaultSSHTimeout = 10 * time.Second

// SSHBackend opens SSH client connections, either by dialing the host
// directly or by layering the SSH handshake over an established tunnel.
type SSHBackend struct {
	// Timeout overrides the dial timeout when positive
	Timeout time.Duration
}

// SSHConn is a live SSH connection handle attached to a host
type SSHConn struct {
	client *ssh.Client
}

// Open implements the Backend interface
func (b *SSHBackend) Open(ctx context.Context, host *inventory.Host, creds inventory.Credentials, sock net.Conn) (inventory.Connection, error) {
	config, err := b.clientConfig(creds)
	if err != nil {
		return nil, err
	}

	port := creds.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	addr := host.Address(port)

	var client *ssh.Client
	if sock != nil {
		// run the handshake over the tunnel instead of dialing directly
		conn, chans, reqs, err := ssh.NewClientConn(sock, addr, config)
		if err != nil {
			return nil, fmt.Errorf("ssh handshake with %q over tunnel: %w", addr, err)
		}
		client = ssh.NewClient(conn, chans, reqs)
	} else {
		client, err = ssh.Dial("tcp", addr, config)
		if err != nil {
			return nil, fmt.Errorf("ssh dial %q: %w", addr, err)
		}
	}

	return &SSHConn{client: client}, nil
}

func (b *SSHBackend) clientConfig(creds inventory.Credentials) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if creds.KeyFile != "" {
		key, err := os.ReadFile(creds.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading ssh key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing ssh key file %q: %w", creds.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		auth = append(auth, ssh.Password(creds.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh authentication method for user %q", creds.Username)
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultSSHTimeout
	}

	return &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// Run executes a single command in a fresh session and returns the combined
// stdout and stderr output
func (c *SSHConn) Run(command string) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	if err != nil {
		return string(out), fmt.Errorf("running %q: %w", command, err)
	}
	return string(out), nil
}

// SFTP opens an SFTP subsystem client over the connection. The caller owns
// the returned client and must close it.
func (c *SSHConn) SFTP() (*sftp.Client, error) {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, fmt.Errorf("opening sftp subsystem: %w", err)
	}
	return client, nil
}

// Client exposes the underlying SSH client
func (c *SSHConn) Client() *ssh.Client {
	return c.client
}

// Close implements the inventory Connection interface
func (c *SSHConn) Close() error {
	return c.client.Close()
}
