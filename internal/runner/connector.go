package runner

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
)

// OpenOptions carries per-attempt connection parameters from the connector
// pool to the connection opener
type OpenOptions struct {
	// Sock, when non-nil, is an established tunnel the connection must use
	// instead of dialing the host directly
	Sock net.Conn

	// Reconnect lists named fallback credential sets to try in order after
	// the host's primary credentials fail
	Reconnect []string
}

// ConnectionOpener establishes named connections on hosts. The connection
// registry implements it; the runner treats it as an opaque capability.
// Open must be idempotent: a connection already present on the host is left
// untouched.
type ConnectionOpener interface {
	Open(ctx context.Context, host *inventory.Host, name string, opts OpenOptions) error
}

// connector is the connection establishment loop. Each goroutine dequeues
// tuples, opens the task's named connections on the host and hands the tuple
// to the worker queue, retrying failures with linear backoff. A nil tuple is
// the shutdown sentinel.
func (r *RetryRunner) connector(ctx context.Context, st *runState) {
	for {
		select {
		case item := <-st.connectQ:
			if item == nil {
				return
			}
			r.processConnect(ctx, st, item)
		case <-ctx.Done():
			return
		}
	}
}

func (r *RetryRunner) processConnect(ctx context.Context, st *runState, item *workItem) {
	// backoff gate: the tuple cycles through the queue until its window has
	// elapsed
	if item.connectRetry > 0 {
		required := time.Duration(item.connectRetry) * st.opts.ConnectBackoff
		if time.Since(item.attemptAt) < required {
			time.Sleep(redrivePause)
			st.connectQ <- item
			return
		}
	}

	failedConn, err := r.openConnections(ctx, st, item)
	if err == nil {
		st.workQ <- item
		return
	}

	// drop the partial connection so the next attempt starts clean
	r.closeTaskConnections(item.host, failedConn)

	r.logger.Error("connection attempt failed",
		"host", item.host.Name,
		"connection", failedConn,
		"attempt", item.connectRetry,
		"error", err)

	if item.connectRetry < st.opts.ConnectRetry {
		item.connectRetry++
		item.attemptAt = time.Now()
		st.connectQ <- item
		return
	}

	// retries exhausted: terminal failure, recorded directly without ever
	// reaching the worker pool
	st.finalize(&HostResult{
		Host:   item.host.Name,
		Task:   item.task.Name,
		Failed: true,
		Error: fmt.Errorf("connection %q failed after %d attempts: %w",
			failedConn, item.connectRetry+1, err),
		ConnectRetries: item.connectRetry,
		TaskRetries:    item.taskRetry,
	})
}

// openConnections establishes every connection the task declares on the
// host. Returns the name of the connection that failed along with the error.
func (r *RetryRunner) openConnections(ctx context.Context, st *runState, item *workItem) (string, error) {
	host := item.host

	for _, name := range item.task.Connections {
		// idempotent open: re-checked on every dequeue
		if host.HasConnection(name) {
			continue
		}

		r.splay(st.opts.ConnectSplay)

		var sock net.Conn
		if host.JumpHost != nil && st.tunneled[name] {
			var err error
			sock, err = r.jump.channel(ctx, host)
			if err != nil {
				return name, err
			}
		}

		if r.opener == nil {
			return name, fmt.Errorf("no connection opener configured for %q", name)
		}
		if err := r.opener.Open(ctx, host, name, OpenOptions{Sock: sock, Reconnect: st.opts.CredsRetry}); err != nil {
			return name, err
		}

		r.logger.Info("started connection", "host", host.Name, "connection", name)
	}

	return "", nil
}

// closeTaskConnections drops the named connection and, for hosts behind a
// jump host, the cached tunnel channel, so a retry re-establishes both
func (r *RetryRunner) closeTaskConnections(host *inventory.Host, names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := host.CloseConnection(name); err != nil {
			r.logger.Debug("failed to close connection", "host", host.Name, "connection", name, "error", err)
		}
	}
	if host.JumpHost != nil {
		if err := host.CloseConnection(jumpChannelName(host.JumpHost)); err != nil {
			r.logger.Debug("failed to close jump host channel", "host", host.Name, "error", err)
		}
	}
}
