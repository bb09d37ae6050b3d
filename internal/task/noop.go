package task

import (
	"context"
	"fmt"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/runner"
)

// Noop builds a task that succeeds without touching the host. It needs no
// connections and is useful for verifying inventory resolution and runner
// plumbing end to end.
//
// Params understood:
//   - delay: per-host sleep before returning
//   - fail:  when true, every attempt fails
func Noop(params runner.Params) *runner.Task {
	return &runner.Task{
		Name:   "noop",
		Params: params,
		Func: func(ctx context.Context, host *inventory.Host, params runner.Params) (interface{}, error) {
			if delay, ok := params["delay"].(time.Duration); ok && delay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			}
			if fail, ok := params["fail"].(bool); ok && fail {
				return nil, fmt.Errorf("noop task failed on host %q", host.Name)
			}
			return fmt.Sprintf("noop ok on %s", host.Name), nil
		},
	}
}
