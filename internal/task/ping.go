package task

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/runner"
)

// defaultPingTimeout bounds one TCP probe
const defaultPingTimeout = 5 * time.Second

// PingResult is the payload of a ping task
type PingResult struct {
	Address   string        `json:"address" yaml:"address"`
	Reachable bool          `json:"reachable" yaml:"reachable"`
	RTT       time.Duration `json:"rtt" yaml:"rtt"`
}

// Ping builds a task probing TCP reachability of each host on the given
// port (zero selects the SSH default). It needs no pre-established
// connections, so it runs equally well under either runner.
func Ping(port int, timeout time.Duration) *runner.Task {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}

	return &runner.Task{
		Name: "ping",
		Params: runner.Params{
			"port":    port,
			"timeout": timeout,
		},
		Func: func(ctx context.Context, host *inventory.Host, params runner.Params) (interface{}, error) {
			port, _ := params["port"].(int)
			timeout, _ := params["timeout"].(time.Duration)
			if port == 0 {
				port = 22
			}

			addr := host.Address(port)
			dialer := net.Dialer{Timeout: timeout}

			start := time.Now()
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			rtt := time.Since(start)
			if err != nil {
				return PingResult{Address: addr}, fmt.Errorf("tcp probe %q: %w", addr, err)
			}
			conn.Close()

			return PingResult{Address: addr, Reachable: true, RTT: rtt}, nil
		},
	}
}
