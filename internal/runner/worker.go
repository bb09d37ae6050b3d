package runner

import (
	"context"
	"time"
)

// worker is the task execution loop. Each goroutine dequeues ready tuples,
// executes the task clone against the host and either requeues transient
// failures with backoff or records the terminal outcome. A nil tuple is the
// shutdown sentinel.
func (r *RetryRunner) worker(ctx context.Context, st *runState) {
	for {
		select {
		case item := <-st.workQ:
			if item == nil {
				return
			}
			r.processWork(ctx, st, item)
		case <-ctx.Done():
			return
		}
	}
}

func (r *RetryRunner) processWork(ctx context.Context, st *runState, item *workItem) {
	// backoff gate, same redrive mechanism as the connector
	if item.taskRetry > 0 {
		required := time.Duration(item.taskRetry) * st.opts.TaskBackoff
		if time.Since(item.attemptAt) < required {
			time.Sleep(redrivePause)
			st.workQ <- item
			return
		}
	}

	r.splay(st.opts.TaskSplay)

	r.logger.Info("running task", "host", item.host.Name, "task", item.task.Name)

	start := time.Now()
	data, err := item.task.start(ctx, item.host)
	duration := time.Since(start)

	if err != nil {
		r.logger.Error("task attempt failed",
			"host", item.host.Name,
			"task", item.task.Name,
			"attempt", item.taskRetry,
			"error", err)

		// task retries stop once either ceiling is reached, or when the
		// error matches a stop pattern
		if !matchesStopError(st.stopPatterns, err) &&
			item.taskRetry < st.opts.TaskRetry &&
			item.connectRetry < st.opts.ConnectRetry {
			item.taskRetry++
			item.attemptAt = time.Now()

			if st.opts.ReconnectOnFail {
				// drop connections and route back through the connector pool
				r.closeTaskConnections(item.host, item.task.Connections...)
				item.connectRetry++
				st.connectQ <- item
			} else {
				st.workQ <- item
			}
			return
		}
	}

	st.finalize(&HostResult{
		Host:           item.host.Name,
		Task:           item.task.Name,
		Data:           data,
		Failed:         err != nil,
		Error:          err,
		ConnectRetries: item.connectRetry,
		TaskRetries:    item.taskRetry,
		Duration:       duration,
	})

	r.logger.Info("task completed",
		"host", item.host.Name,
		"task", item.task.Name,
		"failed", err != nil,
		"duration", duration)
}
