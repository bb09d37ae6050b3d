package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/util"
)

// Default retry runner options
const (
	DefaultNumWorkers     = 100
	DefaultNumConnectors  = 20
	DefaultConnectRetry   = 3
	DefaultConnectBackoff = 5 * time.Second
	DefaultConnectSplay   = 100 * time.Millisecond
	DefaultTaskRetry      = 1
	DefaultTaskBackoff    = 5 * time.Second
	DefaultTaskSplay      = 100 * time.Millisecond
	DefaultTaskTimeout    = 600 * time.Second
)

// redrivePause is slept before re-enqueueing a tuple whose backoff window has
// not elapsed yet, so the requeue cycle does not spin the CPU hot
const redrivePause = 25 * time.Millisecond

// Runner dispatches one task against a set of hosts and returns the per-host
// result collection. Per-host failures are captured in the results; Run only
// returns an error for caller mistakes such as invalid pool sizes.
type Runner interface {
	Run(ctx context.Context, task *Task, hosts []*inventory.Host) (Results, error)
}

// Options configures a RetryRunner. Use DefaultOptions as the starting point;
// a zero Options value disables backoff, splay and the run timeout.
type Options struct {
	// NumWorkers is the task execution goroutine count
	NumWorkers int

	// NumConnectors is the connection establishment goroutine count
	NumConnectors int

	// ConnectRetry is the maximum number of connection retries per host
	ConnectRetry int

	// ConnectBackoff is the backoff unit between connection retries,
	// multiplied by the retry count
	ConnectBackoff time.Duration

	// ConnectSplay is the maximum random jitter before a connect attempt
	ConnectSplay time.Duration

	// TaskRetry is the maximum number of task execution retries per host
	TaskRetry int

	// TaskBackoff is the backoff unit between task retries, multiplied by
	// the retry count
	TaskBackoff time.Duration

	// TaskSplay is the maximum random jitter before a task attempt
	TaskSplay time.Duration

	// TaskTimeout bounds the whole run; hosts without a result when it
	// expires are recorded as failed. Zero disables the guard.
	TaskTimeout time.Duration

	// ReconnectOnFail re-establishes the task's connections before a task
	// retry, routing the host back through the connector pool
	ReconnectOnFail bool

	// TaskStopErrors lists glob patterns that stop task retries when matched
	// against a task error. The "*validation error*" pattern is always
	// included.
	TaskStopErrors []string

	// CredsRetry lists named fallback credential sets tried in order when
	// the host's primary credentials fail to open a connection
	CredsRetry []string

	// TunnelConnections names the connection types relayed through a jump
	// host when the host has one. Defaults to "ssh".
	TunnelConnections []string

	// JumpDial opens the SSH transport to a jump host. Defaults to a
	// golang.org/x/crypto/ssh dialer; replaceable for tests.
	JumpDial JumpDialFunc
}

// DefaultOptions returns the canonical retry runner options
func DefaultOptions() Options {
	return Options{
		NumWorkers:      DefaultNumWorkers,
		NumConnectors:   DefaultNumConnectors,
		ConnectRetry:    DefaultConnectRetry,
		ConnectBackoff:  DefaultConnectBackoff,
		ConnectSplay:    DefaultConnectSplay,
		TaskRetry:       DefaultTaskRetry,
		TaskBackoff:     DefaultTaskBackoff,
		TaskSplay:       DefaultTaskSplay,
		TaskTimeout:     DefaultTaskTimeout,
		ReconnectOnFail: true,
	}
}

// RetryRunner executes tasks with two bounded goroutine pools: connectors
// establishing connections (directly or through a jump host) and workers
// executing the task, both retrying failures with linear backoff and random
// jitter. The jump host registry is owned by the runner instance, so
// distinct runners never share transports.
type RetryRunner struct {
	opts   Options
	opener ConnectionOpener
	logger *slog.Logger
	jump   *jumpBroker
}

// NewRetryRunner creates a retry runner. The opener establishes named
// connections on hosts; it may be nil when tasks declare no connections.
func NewRetryRunner(opts Options, opener ConnectionOpener, logger *slog.Logger) *RetryRunner {
	if logger == nil {
		logger = slog.Default()
	}

	dial := opts.JumpDial
	if dial == nil {
		dial = dialJumpHost
	}

	return &RetryRunner{
		opts:   opts,
		opener: opener,
		logger: logger,
		jump:   newJumpBroker(dial, logger),
	}
}

// Close tears down jump host transports held by the runner
func (r *RetryRunner) Close() error {
	return r.jump.close()
}

// workItem is one (task clone, host, retry state) tuple moving between the
// connector and worker queues
type workItem struct {
	task *Task
	host *inventory.Host

	// retry state: counters are monotonically non-decreasing, attemptAt
	// stamps the most recent failed attempt for backoff gating
	connectRetry int
	taskRetry    int
	attemptAt    time.Time
}

// runState is the shared state of one Run invocation
type runState struct {
	opts         Options
	connectQ     chan *workItem
	workQ        chan *workItem
	tunneled     map[string]bool
	stopPatterns []string

	resMu   sync.Mutex
	results Results
	pending sync.WaitGroup
}

// finalize records the terminal outcome for a host. Exactly the first write
// per host wins; late attempts after a timeout fill are dropped.
func (st *runState) finalize(res *HostResult) bool {
	st.resMu.Lock()
	defer st.resMu.Unlock()

	if _, ok := st.results[res.Host]; ok {
		return false
	}
	st.results[res.Host] = res
	st.pending.Done()
	return true
}

// failPending records a terminal failure for every seeded host that has no
// result yet, used when the run timeout expires or the context is cancelled
func (st *runState) failPending(hosts []*inventory.Host, taskName string, cause error) {
	for _, host := range hosts {
		st.finalize(&HostResult{
			Host:   host.Name,
			Task:   taskName,
			Failed: true,
			Error:  util.WrapHostError(host.Name, cause),
		})
	}
}

// Run dispatches the task against the hosts and blocks until every host has
// exactly one terminal entry in the returned result collection.
//
// Hosts with duplicate names are rejected: the result collection is keyed by
// host name and silently dropping work would violate its completeness
// guarantee.
func (r *RetryRunner) Run(ctx context.Context, task *Task, hosts []*inventory.Host) (Results, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	opts := r.opts
	if o := task.Overrides; o != nil {
		if o.NumWorkers > 0 {
			opts.NumWorkers = o.NumWorkers
		}
		if o.NumConnectors > 0 {
			opts.NumConnectors = o.NumConnectors
		}
		if o.ConnectRetry != nil {
			opts.ConnectRetry = *o.ConnectRetry
		}
		if o.TaskRetry != nil {
			opts.TaskRetry = *o.TaskRetry
		}
	}

	if opts.NumConnectors <= 0 {
		return nil, fmt.Errorf("%w: num_connectors must be above 0", util.ErrInvalidConfig)
	}
	if opts.NumWorkers <= 0 {
		return nil, fmt.Errorf("%w: num_workers must be above 0", util.ErrInvalidConfig)
	}
	if opts.ConnectRetry < 0 || opts.TaskRetry < 0 {
		return nil, fmt.Errorf("%w: retry ceilings must not be negative", util.ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(hosts))
	for _, host := range hosts {
		if seen[host.Name] {
			return nil, fmt.Errorf("%w: duplicate host name %q", util.ErrInvalidConfig, host.Name)
		}
		seen[host.Name] = true
	}

	if len(hosts) == 0 {
		return make(Results), nil
	}

	tunneled := make(map[string]bool)
	if len(opts.TunnelConnections) == 0 {
		tunneled["ssh"] = true
	}
	for _, name := range opts.TunnelConnections {
		tunneled[name] = true
	}

	// queue capacity covers every seeded tuple plus one shutdown sentinel
	// per goroutine, so backoff requeues can never block
	capacity := len(hosts) + opts.NumConnectors + opts.NumWorkers
	st := &runState{
		opts:         opts,
		connectQ:     make(chan *workItem, capacity),
		workQ:        make(chan *workItem, capacity),
		tunneled:     tunneled,
		stopPatterns: append(append([]string{}, opts.TaskStopErrors...), "*validation error*"),
		results:      make(Results, len(hosts)),
	}
	st.pending.Add(len(hosts))

	// seed the connector queue with one task clone per host
	for _, host := range hosts {
		st.connectQ <- &workItem{task: task.Clone(), host: host}
	}

	r.logger.Info("starting task run",
		"task", task.Name,
		"hosts", len(hosts),
		"connectors", opts.NumConnectors,
		"workers", opts.NumWorkers)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumConnectors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.connector(ctx, st)
		}()
	}
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, st)
		}()
	}

	done := make(chan struct{})
	go func() {
		st.pending.Wait()
		close(done)
	}()

	var timeoutC <-chan time.Time
	if opts.TaskTimeout > 0 {
		timer := time.NewTimer(opts.TaskTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-done:
	case <-timeoutC:
		r.logger.Warn("task timeout reached, failing hosts without results",
			"task", task.Name,
			"timeout", opts.TaskTimeout)
		st.failPending(hosts, task.Name, util.ErrTimeout)
	case <-ctx.Done():
		st.failPending(hosts, task.Name, ctx.Err())
	}

	// one shutdown sentinel per goroutine ends its loop
	for i := 0; i < opts.NumConnectors; i++ {
		st.connectQ <- nil
	}
	for i := 0; i < opts.NumWorkers; i++ {
		st.workQ <- nil
	}
	wg.Wait()

	summary := st.results.Summarize()
	r.logger.Info("task run completed",
		"task", task.Name,
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed)

	return st.results, nil
}

// splay sleeps a random interval in [0, max) to desynchronize concurrent
// attempts
func (r *RetryRunner) splay(max time.Duration) {
	if max > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(max))))
	}
}

// matchesStopError reports whether the error matches any stop pattern.
// Patterns use fnmatch semantics so wildcards span slashes, which error
// texts naming interfaces or file paths routinely contain.
func matchesStopError(patterns []string, err error) bool {
	text := err.Error()
	for _, pattern := range patterns {
		if util.MatchText(pattern, text) {
			return true
		}
	}
	return false
}
