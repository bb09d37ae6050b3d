// Package connection manages live protocol connections to inventory hosts.
//
// A Registry maps connection names (ssh, gnmi, http) to backends and
// implements the opener capability the runner's connector pool drives.
// Opened handles are cached on the host record, so a host keeps its
// connections across tasks until explicitly closed.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/runner"
	"github.com/aryankumar/drover/internal/util"
)

// Backend establishes one kind of protocol connection to a host. sock, when
// non-nil, is an established tunnel the backend must layer its protocol over
// instead of dialing the host directly.
type Backend interface {
	Open(ctx context.Context, host *inventory.Host, creds inventory.Credentials, sock net.Conn) (inventory.Connection, error)
}

// Registry dispatches connection opens to named backends. It satisfies the
// runner's ConnectionOpener interface.
type Registry struct {
	mu       sync.Mutex
	backends map[string]Backend
	opening  map[string]*sync.Mutex
	logger   *slog.Logger
}

// NewRegistry creates a registry with the standard backends registered
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		backends: make(map[string]Backend),
		opening:  make(map[string]*sync.Mutex),
		logger:   logger,
	}
	r.Register("ssh", &SSHBackend{})
	r.Register("gnmi", &GNMIBackend{})
	r.Register("http", &HTTPBackend{})
	return r
}

// Register adds or replaces the backend for a connection name
func (r *Registry) Register(name string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = backend
}

// Names returns the registered backend names
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// openMutex returns the mutex serializing opens of one connection name on one
// host, so two goroutines racing to open the same connection produce one
// handle instead of an orphan
func (r *Registry) openMutex(host *inventory.Host, name string) *sync.Mutex {
	key := host.Name + "\x00" + name
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.opening[key]
	if !ok {
		m = &sync.Mutex{}
		r.opening[key] = m
	}
	return m
}

// Open establishes the named connection on the host if it is not already
// present. The host's primary credentials are tried first; on failure each
// named fallback set in opts.Reconnect is tried in order, and the first set
// that connects wins.
func (r *Registry) Open(ctx context.Context, host *inventory.Host, name string, opts runner.OpenOptions) error {
	r.mu.Lock()
	backend, ok := r.backends[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown connection type %q", util.ErrInvalidConfig, name)
	}

	m := r.openMutex(host, name)
	m.Lock()
	defer m.Unlock()

	if host.HasConnection(name) {
		return nil
	}

	attempts := []inventory.Credentials{host.PrimaryCredentials()}
	for _, setName := range opts.Reconnect {
		creds, ok := host.CredentialSet(setName)
		if !ok {
			r.logger.Warn("fallback credential set not defined on host",
				"host", host.Name, "credentials", setName)
			continue
		}
		attempts = append(attempts, creds)
	}

	var lastErr error
	for i, creds := range attempts {
		conn, err := backend.Open(ctx, host, creds, opts.Sock)
		if err == nil {
			host.SetConnection(name, conn)
			if i > 0 {
				r.logger.Info("connected with fallback credentials",
					"host", host.Name, "connection", name, "set", i)
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("%w: %q on host %q: %v",
		util.ErrConnectionFailed, name, host.Name, lastErr)
}
