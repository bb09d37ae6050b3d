package connection

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/openconfig/gnmic/pkg/api"
	"github.com/openconfig/gnmic/pkg/api/target"

	"github.com/aryankumar/drover/internal/inventory"
)

// DefaultGNMIPort is the port used when the host does not specify one
const DefaultGNMIPort = 57400

// defaultGNMITimeout bounds target creation and the gRPC dial
const defaultGNMITimeout = 10 * time.Second

// GNMIBackend opens gNMI targets over gRPC
type GNMIBackend struct {
	// Timeout overrides the connect timeout when positive
	Timeout time.Duration

	// SkipVerify disables TLS certificate verification; when TLS material is
	// not configured the dial falls back to plaintext
	SkipVerify bool
}

// GNMIConn is a live gNMI target handle attached to a host
type GNMIConn struct {
	target *target.Target
}

// Open implements the Backend interface
func (b *GNMIBackend) Open(ctx context.Context, host *inventory.Host, creds inventory.Credentials, sock net.Conn) (inventory.Connection, error) {
	if sock != nil {
		return nil, fmt.Errorf("gnmi connections cannot run over a jump host tunnel")
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultGNMITimeout
	}

	port := creds.Port
	if port == 0 {
		port = DefaultGNMIPort
	}

	opts := []api.TargetOption{
		api.Name(host.Name),
		api.Address(host.Address(port)),
		api.Timeout(timeout),
		api.Insecure(true),
		api.SkipVerify(b.SkipVerify),
	}
	if creds.Username != "" {
		opts = append(opts, api.Username(creds.Username))
	}
	if creds.Password != "" {
		opts = append(opts, api.Password(creds.Password))
	}

	t, err := api.NewTarget(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gnmi target for %q: %w", host.Name, err)
	}

	if err := t.CreateGNMIClient(ctx); err != nil {
		return nil, fmt.Errorf("gnmi dial %q: %w", host.Name, err)
	}

	return &GNMIConn{target: t}, nil
}

// Target exposes the underlying gnmic target for RPC calls
func (c *GNMIConn) Target() *target.Target {
	return c.target
}

// Close implements the inventory Connection interface
func (c *GNMIConn) Close() error {
	return c.target.Close()
}
