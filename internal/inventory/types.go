package inventory

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
)

// Connection is a live protocol handle attached to a host.
// Backends wrap their client objects (SSH client, gNMI target, HTTP client)
// in this interface so the host can track and tear them down uniformly.
type Connection interface {
	Close() error
}

// Credentials is one set of connection parameters. Named credential sets can
// be defined in host, group or defaults inventory data and tried in sequence
// when the primary host credentials fail.
type Credentials struct {
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty" json:"keyFile,omitempty"`
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
}

// JumpHost describes an SSH bastion relaying connections to a host that has
// no direct reachability.
type JumpHost struct {
	Hostname string `yaml:"hostname" json:"hostname"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// Timeout is the transport connect timeout in seconds (default 3)
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Address returns the jump host dial address with the default SSH port applied
func (j *JumpHost) Address() string {
	port := j.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(j.Hostname, strconv.Itoa(port))
}

// Host represents one managed endpoint: its connection parameters plus the
// live connection handles attached during a run. A Host outlives a single
// run and is reused across many task invocations.
type Host struct {
	// Name is the unique inventory key for this host
	Name string `yaml:"-" json:"name"`

	// Hostname is the network address (IP or FQDN) to connect to
	Hostname string `yaml:"hostname" json:"hostname"`

	// Port is the connection port; zero means the backend default
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Platform is a free-form device platform tag (ios, eos, junos, ...)
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`

	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty" json:"keyFile,omitempty"`

	// Groups lists inventory groups this host inherits parameters from
	Groups []string `yaml:"groups,omitempty" json:"groups,omitempty"`

	// JumpHost, when set, routes relay-capable connections through a bastion
	JumpHost *JumpHost `yaml:"jump_host,omitempty" json:"jumpHost,omitempty"`

	// Data is an arbitrary free-form data bag
	Data map[string]interface{} `yaml:"data,omitempty" json:"data,omitempty"`

	// Credentials holds named fallback credential sets
	Credentials map[string]Credentials `yaml:"credentials,omitempty" json:"-"`

	// mu guards the live connection handle map
	mu          sync.Mutex
	connections map[string]Connection
}

// Address returns the host dial address, applying defaultPort when the host
// does not specify one
func (h *Host) Address(defaultPort int) string {
	port := h.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(h.Hostname, strconv.Itoa(port))
}

// PrimaryCredentials returns the host's own connection parameters
func (h *Host) PrimaryCredentials() Credentials {
	return Credentials{
		Username: h.Username,
		Password: h.Password,
		KeyFile:  h.KeyFile,
		Platform: h.Platform,
		Port:     h.Port,
	}
}

// CredentialSet looks up a named fallback credential set
func (h *Host) CredentialSet(name string) (Credentials, bool) {
	creds, ok := h.Credentials[name]
	return creds, ok
}

// Connection returns the live connection handle registered under name
func (h *Host) Connection(name string) (Connection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.connections[name]
	return conn, ok
}

// HasConnection reports whether a connection handle is registered under name
func (h *Host) HasConnection(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.connections[name]
	return ok
}

// SetConnection registers a live connection handle under name.
// A handle already present under the same name is closed and replaced
// (last writer wins).
func (h *Host) SetConnection(name string, conn Connection) {
	h.mu.Lock()
	prev := h.connections[name]
	if h.connections == nil {
		h.connections = make(map[string]Connection)
	}
	h.connections[name] = conn
	h.mu.Unlock()

	if prev != nil && prev != conn {
		_ = prev.Close()
	}
}

// CloseConnection closes and removes the connection handle registered under
// name. Closing a connection that does not exist is a no-op.
func (h *Host) CloseConnection(name string) error {
	h.mu.Lock()
	conn, ok := h.connections[name]
	delete(h.connections, name)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("closing connection %q on host %q: %w", name, h.Name, err)
	}
	return nil
}

// CloseAllConnections closes and removes every connection handle on the host
func (h *Host) CloseAllConnections() error {
	var errs []error
	for _, name := range h.ConnectionNames() {
		if err := h.CloseConnection(name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing connections on host %q: %v", h.Name, errs)
	}
	return nil
}

// ConnectionNames returns the names of all live connection handles, sorted
func (h *Host) ConnectionNames() []string {
	h.mu.Lock()
	names := make([]string, 0, len(h.connections))
	for name := range h.connections {
		names = append(names, name)
	}
	h.mu.Unlock()

	sort.Strings(names)
	return names
}

// DataString returns a string value from the host data bag, or def when the
// key is absent or not a string
func (h *Host) DataString(key, def string) string {
	if v, ok := h.Data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}
