// Package runner provides the concurrent task execution engines that
// dispatch a unit of work against a fleet of hosts.
//
// # RetryRunner
//
// RetryRunner is the reliability-focused engine. It separates connection
// establishment from task execution: a bounded pool of connector goroutines
// drains the connect queue, opening the connections a task declares on each
// host (directly, or tunnelled through an SSH jump host), while a bounded
// pool of worker goroutines drains the work queue and executes the task.
// Both pools retry failures with a linear backoff (retry count times a fixed
// unit) and a random splay before each attempt.
//
// Limiting the connector pool size caps the rate of concurrent connection
// establishment across the fleet, which matters when AAA systems throttle
// authentication bursts.
//
// Backoff is implemented by re-enqueueing the tuple: a dequeued tuple whose
// backoff window has not elapsed is put back on the same queue and picked up
// again later. This trades some queue churn for having no timer state at
// all.
//
// Hosts behind a bastion share a single SSH transport per jump host address,
// coordinated by a registry owned by the runner instance: the first
// goroutine to need a jump host dials it while the others poll until the
// attempt resolves, then each destination host gets its own tunnel channel
// over the shared transport.
//
// A run blocks until every seeded host has exactly one terminal entry in the
// returned Results, whether success or exhausted-retries failure. Per-host
// failures never abort the run for other hosts; Run only returns an error
// for caller mistakes such as invalid pool sizes or duplicate host names.
//
//	opts := runner.DefaultOptions()
//	r := runner.NewRetryRunner(opts, registry, logger)
//	defer r.Close()
//
//	results, err := r.Run(ctx, task.Commands([]string{"show clock"}), hosts)
//
// # QueueRunner
//
// QueueRunner is the simple variant: one worker pool, one queue, no
// connection management, no retries. Useful for tasks that manage their own
// connectivity or for inventory-only operations.
package runner
