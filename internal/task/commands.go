// Package task provides the built-in task builders. Each builder returns a
// runner Task wired to the connection names it needs, so callers compose a
// run from inventory, a builder and a runner without touching connection
// plumbing.
package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/aryankumar/drover/internal/connection"
	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/runner"
)

// sshConn fetches the host's SSH handle, failing with a descriptive error
// when it is missing or of an unexpected type
func sshConn(host *inventory.Host) (*connection.SSHConn, error) {
	raw, ok := host.Connection("ssh")
	if !ok {
		return nil, fmt.Errorf("host %q has no ssh connection", host.Name)
	}
	conn, ok := raw.(*connection.SSHConn)
	if !ok {
		return nil, fmt.Errorf("host %q: ssh connection has unexpected type %T", host.Name, raw)
	}
	return conn, nil
}

// Commands builds a task that runs a list of CLI commands over the host's
// SSH connection. The result payload maps each command to its combined
// output; the task fails on the first command whose session errors.
func Commands(commands []string) *runner.Task {
	name := "commands"
	if len(commands) == 1 {
		name = commands[0]
	}

	return &runner.Task{
		Name:        name,
		Connections: []string{"ssh"},
		Params: runner.Params{
			"commands": commands,
		},
		Func: func(ctx context.Context, host *inventory.Host, params runner.Params) (interface{}, error) {
			conn, err := sshConn(host)
			if err != nil {
				return nil, err
			}

			cmds, _ := params["commands"].([]string)
			output := make(map[string]string, len(cmds))
			for _, cmd := range cmds {
				if err := ctx.Err(); err != nil {
					return output, err
				}
				out, err := conn.Run(cmd)
				output[cmd] = strings.TrimRight(out, "\n")
				if err != nil {
					return output, err
				}
			}
			return output, nil
		},
	}
}
