package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/util"
)

// DefaultQueueWorkers is the default pool size of a QueueRunner
const DefaultQueueWorkers = 20

// QueueRunner is the simple runner variant: one fixed pool of workers
// consuming hosts from a single queue, with no connection management and no
// retries. It is the degenerate case of the RetryRunner with retry ceilings
// fixed at zero and no connector stage.
type QueueRunner struct {
	numWorkers int
	logger     *slog.Logger
}

// NewQueueRunner creates a queue runner; numWorkers <= 0 selects the default
func NewQueueRunner(numWorkers int, logger *slog.Logger) *QueueRunner {
	if numWorkers <= 0 {
		numWorkers = DefaultQueueWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueRunner{
		numWorkers: numWorkers,
		logger:     logger,
	}
}

// Run executes the task once per host and returns one result per host
func (q *QueueRunner) Run(ctx context.Context, task *Task, hosts []*inventory.Host) (Results, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(hosts))
	for _, host := range hosts {
		if seen[host.Name] {
			return nil, fmt.Errorf("%w: duplicate host name %q", util.ErrInvalidConfig, host.Name)
		}
		seen[host.Name] = true
	}

	results := make(Results, len(hosts))
	if len(hosts) == 0 {
		return results, nil
	}

	workQ := make(chan *workItem, len(hosts))
	for _, host := range hosts {
		workQ <- &workItem{task: task.Clone(), host: host}
	}
	close(workQ)

	q.logger.Info("starting task run", "task", task.Name, "hosts", len(hosts), "workers", q.numWorkers)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < q.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case item, ok := <-workQ:
					if !ok {
						return
					}
					start := time.Now()
					data, err := item.task.start(ctx, item.host)
					mu.Lock()
					results[item.host.Name] = &HostResult{
						Host:     item.host.Name,
						Task:     item.task.Name,
						Data:     data,
						Failed:   err != nil,
						Error:    err,
						Duration: time.Since(start),
					}
					mu.Unlock()
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()

	// hosts not executed before cancellation still get a terminal entry
	mu.Lock()
	for _, host := range hosts {
		if _, ok := results[host.Name]; !ok {
			results[host.Name] = &HostResult{
				Host:   host.Name,
				Task:   task.Name,
				Failed: true,
				Error:  util.WrapHostError(host.Name, ctx.Err()),
			}
		}
	}
	mu.Unlock()

	return results, nil
}
