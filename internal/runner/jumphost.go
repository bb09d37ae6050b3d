package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/util"
	"golang.org/x/crypto/ssh"
)

// jumpWaitSplay is the maximum random sleep between polls while another
// goroutine is establishing the jump host transport
const jumpWaitSplay = 500 * time.Millisecond

// defaultJumpTimeout is the transport connect timeout when the jump host
// descriptor does not specify one
const defaultJumpTimeout = 3 * time.Second

// JumpTransport is an established SSH transport to a jump host, able to open
// tunnel channels to destination hosts
type JumpTransport interface {
	// DialHost opens a tunnel channel through the jump host to addr
	DialHost(network, addr string) (net.Conn, error)

	Close() error
}

// JumpDialFunc opens the SSH transport to a jump host
type JumpDialFunc func(ctx context.Context, jump *inventory.JumpHost) (JumpTransport, error)

type jumpState int

const (
	jumpConnecting jumpState = iota
	jumpFailed
	jumpReady
)

type jumpEntry struct {
	state     jumpState
	transport JumpTransport
	err       error
}

// jumpBroker coordinates single-flight transport establishment per jump host
// address. The first goroutine needing a jump host claims the entry and
// dials; concurrent goroutines poll until the entry resolves. At most one
// physical transport exists per jump host address at a time.
//
// The broker is owned by a RetryRunner instance, never shared globally.
type jumpBroker struct {
	mu      sync.Mutex
	entries map[string]*jumpEntry
	dial    JumpDialFunc
	logger  *slog.Logger
}

func newJumpBroker(dial JumpDialFunc, logger *slog.Logger) *jumpBroker {
	return &jumpBroker{
		entries: make(map[string]*jumpEntry),
		dial:    dial,
		logger:  logger,
	}
}

// jumpChannelName is the host connection name the tunnel channel is cached
// under
func jumpChannelName(jump *inventory.JumpHost) string {
	return fmt.Sprintf("jumphost_%s_channel", jump.Hostname)
}

// channel returns a tunnel channel through the host's jump host to the host
// itself, establishing the shared transport first if needed. Channels are
// cached on the host record, so repeat calls are free.
func (b *jumpBroker) channel(ctx context.Context, host *inventory.Host) (net.Conn, error) {
	jump := host.JumpHost
	channelName := jumpChannelName(jump)

	if cached, ok := host.Connection(channelName); ok {
		if conn, ok := cached.(net.Conn); ok {
			return conn, nil
		}
	}

	transport, err := b.transport(ctx, jump)
	if err != nil {
		return nil, err
	}

	conn, err := transport.DialHost("tcp", host.Address(22))
	if err != nil {
		return nil, fmt.Errorf("opening channel via jump host %q to %q: %w",
			jump.Hostname, host.Name, err)
	}

	host.SetConnection(channelName, conn)
	b.logger.Info("started channel via jump host",
		"host", host.Name,
		"jumphost", jump.Hostname)

	return conn, nil
}

// transport resolves the shared transport for a jump host address. A failed
// entry is re-claimed by the next caller, so a later connection retry pass
// re-attempts the transport; callers arriving while an attempt is in flight
// wait for that attempt instead of dialing their own.
func (b *jumpBroker) transport(ctx context.Context, jump *inventory.JumpHost) (JumpTransport, error) {
	addr := jump.Address()

	waited := false
	for {
		b.mu.Lock()
		entry, ok := b.entries[addr]
		if (!ok || entry.state == jumpFailed) && !waited {
			// claim the entry and dial
			entry = &jumpEntry{state: jumpConnecting}
			b.entries[addr] = entry
			b.mu.Unlock()

			transport, err := b.dial(ctx, jump)

			b.mu.Lock()
			if err != nil {
				entry.state = jumpFailed
				entry.err = fmt.Errorf("%w: %q: %v", util.ErrJumpHostFailed, jump.Hostname, err)
				b.mu.Unlock()
				b.logger.Error("failed to connect to jump host", "jumphost", addr, "error", err)
				return nil, entry.err
			}
			entry.state = jumpReady
			entry.transport = transport
			b.mu.Unlock()

			b.logger.Info("connected to jump host", "jumphost", addr)
			return transport, nil
		}

		state := entry.state
		transport := entry.transport
		resolveErr := entry.err
		b.mu.Unlock()

		switch state {
		case jumpReady:
			return transport, nil
		case jumpFailed:
			return nil, resolveErr
		case jumpConnecting:
			// another goroutine is dialing; poll with a random sleep and
			// fail fast if that attempt resolves to failed
			waited = true
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(rand.Int63n(int64(jumpWaitSplay)))):
			}
		}
	}
}

// close tears down every established transport and clears the registry
func (b *jumpBroker) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for addr, entry := range b.entries {
		if entry.state == jumpReady && entry.transport != nil {
			if err := entry.transport.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing jump host transport %q: %w", addr, err))
			}
		}
		delete(b.entries, addr)
	}

	return util.CombineErrors(errs...)
}

// sshJumpTransport adapts an SSH client to the JumpTransport interface
type sshJumpTransport struct {
	client *ssh.Client
}

func (t *sshJumpTransport) DialHost(network, addr string) (net.Conn, error) {
	return t.client.Dial(network, addr)
}

func (t *sshJumpTransport) Close() error {
	return t.client.Close()
}

// dialJumpHost is the default JumpDialFunc, opening an SSH transport to the
// jump host with password authentication
func dialJumpHost(_ context.Context, jump *inventory.JumpHost) (JumpTransport, error) {
	timeout := defaultJumpTimeout
	if jump.Timeout > 0 {
		timeout = time.Duration(jump.Timeout) * time.Second
	}

	config := &ssh.ClientConfig{
		User:            jump.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(jump.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", jump.Address(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial jump host %q: %w", jump.Hostname, err)
	}

	return &sshJumpTransport{client: client}, nil
}
