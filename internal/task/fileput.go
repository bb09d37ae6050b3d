package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/runner"
)

// FilePutResult is the payload of a file upload task
type FilePutResult struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
	Bytes       int64  `json:"bytes" yaml:"bytes"`
}

// FilePut builds a task uploading a local file to each host over the SFTP
// subsystem of the host's SSH connection. A destination ending in "/" keeps
// the source file name.
func FilePut(source, destination string) *runner.Task {
	return &runner.Task{
		Name:        "file-put",
		Connections: []string{"ssh"},
		Params: runner.Params{
			"source":      source,
			"destination": destination,
		},
		Func: func(ctx context.Context, host *inventory.Host, params runner.Params) (interface{}, error) {
			src, _ := params["source"].(string)
			dst, _ := params["destination"].(string)
			if dst == "" || dst[len(dst)-1] == '/' {
				dst = dst + path.Base(src)
			}

			conn, err := sshConn(host)
			if err != nil {
				return nil, err
			}

			local, err := os.Open(src)
			if err != nil {
				return nil, fmt.Errorf("opening source file: %w", err)
			}
			defer local.Close()

			client, err := conn.SFTP()
			if err != nil {
				return nil, err
			}
			defer client.Close()

			remote, err := client.Create(dst)
			if err != nil {
				return nil, fmt.Errorf("creating %q on host %q: %w", dst, host.Name, err)
			}
			defer remote.Close()

			n, err := io.Copy(remote, local)
			if err != nil {
				return nil, fmt.Errorf("uploading %q to host %q: %w", src, host.Name, err)
			}

			return FilePutResult{Source: src, Destination: dst, Bytes: n}, nil
		},
	}
}
