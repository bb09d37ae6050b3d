package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
)

// DefaultHTTPPort is the port used when the host does not specify one
const DefaultHTTPPort = 443

// defaultHTTPTimeout bounds each request issued through the handle
const defaultHTTPTimeout = 30 * time.Second

// HTTPBackend builds HTTP API client handles. There is no persistent socket
// to hold; the handle carries a configured client plus the base URL and
// credentials so tasks issue requests without re-deriving them.
type HTTPBackend struct {
	// Timeout overrides the per-request timeout when positive
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification, the common
	// case for self-signed device management certificates
	InsecureSkipVerify bool
}

// HTTPConn is an HTTP API handle attached to a host
type HTTPConn struct {
	client   *http.Client
	baseURL  string
	username string
	password string
}

// Open implements the Backend interface
func (b *HTTPBackend) Open(_ context.Context, host *inventory.Host, creds inventory.Credentials, sock net.Conn) (inventory.Connection, error) {
	if sock != nil {
		return nil, fmt.Errorf("http connections cannot run over a jump host tunnel")
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	port := creds.Port
	if port == 0 {
		port = DefaultHTTPPort
	}

	scheme := host.DataString("http_scheme", "https")
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: b.InsecureSkipVerify},
	}

	return &HTTPConn{
		client:   &http.Client{Timeout: timeout, Transport: transport},
		baseURL:  fmt.Sprintf("%s://%s", scheme, host.Address(port)),
		username: creds.Username,
		password: creds.Password,
	}, nil
}

// NewRequest builds a request against the host's base URL with basic
// authentication applied
func (c *HTTPConn) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// Do issues the request through the handle's configured client
func (c *HTTPConn) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// BaseURL returns the scheme://host:port prefix of the handle
func (c *HTTPConn) BaseURL() string {
	return c.baseURL
}

// Close implements the inventory Connection interface
func (c *HTTPConn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
