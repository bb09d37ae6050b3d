package task

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aryankumar/drover/internal/connection"
	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/runner"
)

// maxHTTPBody caps how much of a response body is captured in results
const maxHTTPBody = 1 << 20

// HTTPResult is the payload of an HTTP call task
type HTTPResult struct {
	StatusCode int         `json:"statusCode" yaml:"status_code"`
	Body       interface{} `json:"body,omitempty" yaml:"body,omitempty"`
}

// httpConn fetches the host's HTTP handle
func httpConn(host *inventory.Host) (*connection.HTTPConn, error) {
	raw, ok := host.Connection("http")
	if !ok {
		return nil, fmt.Errorf("host %q has no http connection", host.Name)
	}
	conn, ok := raw.(*connection.HTTPConn)
	if !ok {
		return nil, fmt.Errorf("host %q: http connection has unexpected type %T", host.Name, raw)
	}
	return conn, nil
}

// HTTPCall builds a task issuing one HTTP request against each host's API
// endpoint. JSON response bodies are decoded into the result payload; other
// content types are captured as text. A response status of 400 or above
// fails the attempt.
func HTTPCall(method, path, body string) *runner.Task {
	return &runner.Task{
		Name:        "http-call",
		Connections: []string{"http"},
		Params: runner.Params{
			"method": method,
			"path":   path,
			"body":   body,
		},
		Func: func(ctx context.Context, host *inventory.Host, params runner.Params) (interface{}, error) {
			conn, err := httpConn(host)
			if err != nil {
				return nil, err
			}

			method, _ := params["method"].(string)
			path, _ := params["path"].(string)
			body, _ := params["body"].(string)

			var reader io.Reader
			if body != "" {
				reader = strings.NewReader(body)
			}

			req, err := conn.NewRequest(ctx, method, path, reader)
			if err != nil {
				return nil, fmt.Errorf("building http request: %w", err)
			}
			if body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := conn.Do(req)
			if err != nil {
				return nil, fmt.Errorf("http %s %s on host %q: %w", method, path, host.Name, err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
			if err != nil {
				return nil, fmt.Errorf("reading http response from host %q: %w", host.Name, err)
			}

			result := HTTPResult{StatusCode: resp.StatusCode}
			if gjson.ValidBytes(raw) {
				result.Body = gjson.ParseBytes(raw).Value()
			} else if len(raw) > 0 {
				result.Body = string(raw)
			}

			if resp.StatusCode >= http.StatusBadRequest {
				return result, fmt.Errorf("http %s %s on host %q: status %d",
					method, path, host.Name, resp.StatusCode)
			}
			return result, nil
		},
	}
}
