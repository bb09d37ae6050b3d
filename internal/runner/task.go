package runner

import (
	"context"
	"fmt"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/util"
)

// Params is the free-form parameter bag of a task
type Params map[string]interface{}

// Func is the work function of a task, executed once per attempt against a
// single host. A non-nil error marks the attempt as failed; the returned
// payload is recorded as the host's result either way.
type Func func(ctx context.Context, host *inventory.Host, params Params) (interface{}, error)

// Overrides adjusts runner options for a single run. Zero-valued pool sizes
// leave the runner defaults in place; retry ceilings use pointers because
// zero is a meaningful ceiling (no retries).
type Overrides struct {
	NumWorkers    int
	NumConnectors int
	ConnectRetry  *int
	TaskRetry     *int
}

// Task is one unit of work to dispatch against a set of hosts.
//
// The runner clones the task once per host at seed time, so a Func may
// freely mutate its params without affecting other hosts (the clone owns a
// deep copy of the parameter bag).
type Task struct {
	// Name identifies the task in results and logs, often the operation or
	// command it performs
	Name string

	// Func is the work function executed against each host
	Func Func

	// Params is passed to Func on every attempt
	Params Params

	// Connections names the connections the connector pool must establish on
	// a host before the task runs. An explicit field, supplied by the task
	// builder; the runner never introspects Func.
	Connections []string

	// Overrides optionally adjusts runner options for this run only
	Overrides *Overrides
}

// Validate checks that the task is runnable
func (t *Task) Validate() error {
	if t == nil {
		return util.NewValidationError("task", nil, "task must not be nil")
	}
	if t.Name == "" {
		return util.NewValidationError("name", nil, "task must have a name")
	}
	if t.Func == nil {
		return util.NewValidationError("func", nil, "task must have a work function")
	}
	return nil
}

// Clone returns an independent copy of the task with a deep copy of the
// parameter bag, safe to dispatch concurrently with other clones.
func (t *Task) Clone() *Task {
	clone := &Task{
		Name:      t.Name,
		Func:      t.Func,
		Overrides: t.Overrides,
	}
	if t.Params != nil {
		clone.Params = copyMap(t.Params)
	}
	if t.Connections != nil {
		clone.Connections = make([]string, len(t.Connections))
		copy(clone.Connections, t.Connections)
	}
	return clone
}

// start executes one attempt of the task against a host.
// A panicking work function is converted into a failed attempt instead of
// taking down the whole run.
func (t *Task) start(ctx context.Context, host *inventory.Host) (data interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %q panicked: %v", t.Name, p)
		}
	}()
	return t.Func(ctx, host, t.Params)
}

// copyMap deep-copies a parameter map, descending into nested maps and slices
func copyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for key, value := range src {
		dst[key] = copyValue(value)
	}
	return dst
}

func copyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return copyMap(v)
	case []interface{}:
		dst := make([]interface{}, len(v))
		for i, item := range v {
			dst[i] = copyValue(item)
		}
		return dst
	case []string:
		dst := make([]string, len(v))
		copy(dst, v)
		return dst
	default:
		return v
	}
}
