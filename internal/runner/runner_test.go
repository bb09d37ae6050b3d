package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/util"
)

// fastOptions returns options with timings shrunk so retry paths complete in
// milliseconds
func fastOptions() Options {
	opts := DefaultOptions()
	opts.NumWorkers = 10
	opts.NumConnectors = 5
	opts.ConnectBackoff = 5 * time.Millisecond
	opts.ConnectSplay = time.Millisecond
	opts.TaskBackoff = 5 * time.Millisecond
	opts.TaskSplay = time.Millisecond
	opts.TaskTimeout = 10 * time.Second
	return opts
}

func makeHosts(n int) []*inventory.Host {
	hosts := make([]*inventory.Host, 0, n)
	for i := 0; i < n; i++ {
		hosts = append(hosts, &inventory.Host{
			Name:     fmt.Sprintf("host-%d", i),
			Hostname: fmt.Sprintf("192.0.2.%d", i+1),
		})
	}
	return hosts
}

type fakeConn struct{}

func (fakeConn) Close() error { return nil }

// fakeOpener counts open attempts per host and fails the first failUntil
// attempts of each host
type fakeOpener struct {
	mu        sync.Mutex
	attempts  map[string]int
	failUntil int
	reconnect []string
}

func newFakeOpener(failUntil int) *fakeOpener {
	return &fakeOpener{
		attempts:  make(map[string]int),
		failUntil: failUntil,
	}
}

func (f *fakeOpener) Open(_ context.Context, host *inventory.Host, name string, opts OpenOptions) error {
	f.mu.Lock()
	f.attempts[host.Name]++
	n := f.attempts[host.Name]
	f.reconnect = opts.Reconnect
	f.mu.Unlock()

	if n <= f.failUntil {
		return fmt.Errorf("%w: simulated failure %d", util.ErrConnectionFailed, n)
	}
	host.SetConnection(name, fakeConn{})
	return nil
}

func (f *fakeOpener) count(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[host]
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestRunAllHostsSucceed(t *testing.T) {
	hosts := makeHosts(5)
	r := NewRetryRunner(fastOptions(), nil, testLogger())
	defer r.Close()

	task := &Task{
		Name: "echo",
		Func: func(_ context.Context, host *inventory.Host, _ Params) (interface{}, error) {
			return host.Name, nil
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != len(hosts) {
		t.Fatalf("expected %d results, got %d", len(hosts), len(results))
	}
	for _, host := range hosts {
		res, ok := results[host.Name]
		if !ok {
			t.Fatalf("missing result for %q", host.Name)
		}
		if res.Failed {
			t.Errorf("host %q failed: %v", host.Name, res.Error)
		}
		if res.Data != host.Name {
			t.Errorf("host %q data = %v, want %q", host.Name, res.Data, host.Name)
		}
	}
}

func TestRunEmptyHosts(t *testing.T) {
	r := NewRetryRunner(fastOptions(), nil, testLogger())
	defer r.Close()

	task := &Task{
		Name: "echo",
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			return nil, nil
		},
	}

	results, err := r.Run(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d entries", len(results))
	}
}

func TestRunValidation(t *testing.T) {
	noop := func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
		return nil, nil
	}
	dupHosts := []*inventory.Host{
		{Name: "dup", Hostname: "192.0.2.1"},
		{Name: "dup", Hostname: "192.0.2.2"},
	}
	negative := -1

	tests := []struct {
		name  string
		task  *Task
		hosts []*inventory.Host
	}{
		{
			name:  "task without func",
			task:  &Task{Name: "broken"},
			hosts: makeHosts(1),
		},
		{
			name:  "task without name",
			task:  &Task{Func: noop},
			hosts: makeHosts(1),
		},
		{
			name:  "duplicate host names",
			task:  &Task{Name: "ok", Func: noop},
			hosts: dupHosts,
		},
		{
			name: "zero workers via overrides",
			task: &Task{
				Name: "ok", Func: noop,
				Overrides: &Overrides{NumWorkers: -1},
			},
			hosts: makeHosts(1),
		},
		{
			name: "negative task retry via overrides",
			task: &Task{
				Name: "ok", Func: noop,
				Overrides: &Overrides{TaskRetry: &negative},
			},
			hosts: makeHosts(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := fastOptions()
			if tt.name == "zero workers via overrides" {
				// override cannot push below 1, use base options instead
				opts.NumWorkers = 0
			}
			r := NewRetryRunner(opts, nil, testLogger())
			defer r.Close()

			if _, err := r.Run(context.Background(), tt.task, tt.hosts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestConnectRetrySucceedsAfterFailures(t *testing.T) {
	hosts := makeHosts(1)
	opener := newFakeOpener(2)

	opts := fastOptions()
	opts.ConnectRetry = 3
	r := NewRetryRunner(opts, opener, testLogger())
	defer r.Close()

	task := &Task{
		Name:        "probe",
		Connections: []string{"ssh"},
		Func: func(_ context.Context, host *inventory.Host, _ Params) (interface{}, error) {
			if !host.HasConnection("ssh") {
				return nil, errors.New("task ran without connection")
			}
			return "ok", nil
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := results["host-0"]
	if res == nil || res.Failed {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := opener.count("host-0"); got != 3 {
		t.Errorf("expected 3 open attempts, got %d", got)
	}
	if res.ConnectRetries != 2 {
		t.Errorf("expected 2 connect retries consumed, got %d", res.ConnectRetries)
	}
}

func TestConnectRetryExhausted(t *testing.T) {
	hosts := makeHosts(1)
	opener := newFakeOpener(100)

	opts := fastOptions()
	opts.ConnectRetry = 2
	r := NewRetryRunner(opts, opener, testLogger())
	defer r.Close()

	taskRan := false
	task := &Task{
		Name:        "probe",
		Connections: []string{"ssh"},
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			taskRan = true
			return nil, nil
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := results["host-0"]
	if res == nil || !res.Failed {
		t.Fatalf("expected failure, got %+v", res)
	}
	if got := opener.count("host-0"); got != 3 {
		t.Errorf("expected 3 open attempts (initial + 2 retries), got %d", got)
	}
	if !strings.Contains(res.ErrorText(), "after 3 attempts") {
		t.Errorf("error text %q does not mention attempt count", res.ErrorText())
	}
	if !errors.Is(res.Error, util.ErrConnectionFailed) {
		t.Errorf("expected ErrConnectionFailed in chain, got %v", res.Error)
	}
	if taskRan {
		t.Error("task ran despite the connection never opening")
	}
}

// timedOpener records the wall-clock time of every open attempt and fails
// each host for its configured number of attempts
type timedOpener struct {
	mu        sync.Mutex
	times     map[string][]time.Time
	failUntil map[string]int
}

func (f *timedOpener) Open(_ context.Context, host *inventory.Host, name string, _ OpenOptions) error {
	f.mu.Lock()
	f.times[host.Name] = append(f.times[host.Name], time.Now())
	n := len(f.times[host.Name])
	f.mu.Unlock()

	if n <= f.failUntil[host.Name] {
		return fmt.Errorf("%w: simulated failure %d", util.ErrConnectionFailed, n)
	}
	host.SetConnection(name, fakeConn{})
	return nil
}

func (f *timedOpener) attemptTimes(host string) []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time{}, f.times[host]...)
}

func TestConnectBackoffGatesRetries(t *testing.T) {
	hosts := makeHosts(3)
	opener := &timedOpener{
		times: make(map[string][]time.Time),
		failUntil: map[string]int{
			"host-0": 0,   // connects on the first attempt
			"host-1": 2,   // fails twice, then connects
			"host-2": 100, // never connects
		},
	}

	backoff := 100 * time.Millisecond
	opts := fastOptions()
	opts.ConnectRetry = 2
	opts.ConnectBackoff = backoff
	opts.ConnectSplay = 0
	r := NewRetryRunner(opts, opener, testLogger())
	defer r.Close()

	task := &Task{
		Name:        "probe",
		Connections: []string{"ssh"},
		Func: func(_ context.Context, host *inventory.Host, _ Params) (interface{}, error) {
			return host.Name, nil
		},
	}

	start := time.Now()
	results, err := r.Run(context.Background(), task, hosts)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res := results["host-0"]; res == nil || res.Failed || res.ConnectRetries != 0 {
		t.Errorf("host-0 = %+v, want immediate success", res)
	}
	if res := results["host-1"]; res == nil || res.Failed || res.ConnectRetries != 2 {
		t.Errorf("host-1 = %+v, want success after 2 retries", res)
	}
	if res := results["host-2"]; res == nil || !res.Failed || !errors.Is(res.Error, util.ErrConnectionFailed) {
		t.Fatalf("host-2 = %+v, want terminal connection failure", res)
	}

	// host-2's retries pay the full gate: one backoff unit before the second
	// attempt and two before the third
	if min := 3 * backoff; elapsed < min {
		t.Errorf("run finished in %v, want at least %v of backoff", elapsed, min)
	}

	// each gap between successive attempts honors its window, which grows
	// with the retry counter
	attempts := opener.attemptTimes("host-2")
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts for host-2, got %d", len(attempts))
	}
	for i := 1; i < len(attempts); i++ {
		gap := attempts[i].Sub(attempts[i-1])
		if want := time.Duration(i) * backoff; gap < want {
			t.Errorf("gap before attempt %d = %v, want at least %v", i+1, gap, want)
		}
	}
}

func TestTaskRetrySucceedsAfterFailure(t *testing.T) {
	hosts := makeHosts(1)

	opts := fastOptions()
	opts.TaskRetry = 2
	opts.ReconnectOnFail = false
	r := NewRetryRunner(opts, nil, testLogger())
	defer r.Close()

	var mu sync.Mutex
	attempts := 0
	task := &Task{
		Name: "flaky",
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return nil, errors.New("transient glitch")
			}
			return "recovered", nil
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := results["host-0"]
	if res == nil || res.Failed {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.TaskRetries != 1 {
		t.Errorf("expected 1 task retry consumed, got %d", res.TaskRetries)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestTaskStopErrorSuppressesRetry(t *testing.T) {
	hosts := makeHosts(1)

	opts := fastOptions()
	opts.TaskRetry = 5
	opts.ReconnectOnFail = false
	r := NewRetryRunner(opts, nil, testLogger())
	defer r.Close()

	var mu sync.Mutex
	attempts := 0
	task := &Task{
		Name: "reject",
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			// interface names put slashes in the text; wildcards must
			// still span them
			return nil, errors.New("interface Ge0/0: validation error in candidate config")
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := results["host-0"]
	if res == nil || !res.Failed {
		t.Fatalf("expected failure, got %+v", res)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for a stop error, got %d", attempts)
	}
}

func TestTaskCustomStopError(t *testing.T) {
	hosts := makeHosts(1)

	opts := fastOptions()
	opts.TaskRetry = 5
	opts.ReconnectOnFail = false
	opts.TaskStopErrors = []string{"*permission denied*"}
	r := NewRetryRunner(opts, nil, testLogger())
	defer r.Close()

	var mu sync.Mutex
	attempts := 0
	task := &Task{
		Name: "denied",
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return nil, errors.New("exec: permission denied for user")
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res := results["host-0"]; res == nil || !res.Failed {
		t.Fatalf("expected failure, got %+v", res)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestTaskRetryBoundedByConnectCeiling(t *testing.T) {
	hosts := makeHosts(1)
	opener := newFakeOpener(0)

	// reconnect-on-fail consumes connect budget; with the connect ceiling at
	// zero the first task failure is terminal regardless of the task ceiling
	opts := fastOptions()
	opts.ConnectRetry = 0
	opts.TaskRetry = 5
	opts.ReconnectOnFail = true
	r := NewRetryRunner(opts, opener, testLogger())
	defer r.Close()

	var mu sync.Mutex
	attempts := 0
	task := &Task{
		Name:        "flaky",
		Connections: []string{"ssh"},
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return nil, errors.New("transient glitch")
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res := results["host-0"]; res == nil || !res.Failed {
		t.Fatalf("expected failure, got %+v", res)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestReconnectOnFailReopensConnection(t *testing.T) {
	hosts := makeHosts(1)
	opener := newFakeOpener(0)

	opts := fastOptions()
	opts.TaskRetry = 1
	opts.ConnectRetry = 3
	opts.ReconnectOnFail = true
	r := NewRetryRunner(opts, opener, testLogger())
	defer r.Close()

	var mu sync.Mutex
	attempts := 0
	task := &Task{
		Name:        "flaky",
		Connections: []string{"ssh"},
		Func: func(_ context.Context, host *inventory.Host, _ Params) (interface{}, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return nil, errors.New("channel closed")
			}
			if !host.HasConnection("ssh") {
				return nil, errors.New("retry ran without a fresh connection")
			}
			return "recovered", nil
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := results["host-0"]
	if res == nil || res.Failed {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := opener.count("host-0"); got != 2 {
		t.Errorf("expected connection reopened once (2 opens), got %d", got)
	}
	if res.TaskRetries != 1 || res.ConnectRetries != 1 {
		t.Errorf("expected 1 task and 1 connect retry consumed, got %d/%d",
			res.TaskRetries, res.ConnectRetries)
	}
}

func TestCredsRetryPassedToOpener(t *testing.T) {
	hosts := makeHosts(1)
	opener := newFakeOpener(0)

	opts := fastOptions()
	opts.CredsRetry = []string{"backup", "deploy"}
	r := NewRetryRunner(opts, opener, testLogger())
	defer r.Close()

	task := &Task{
		Name:        "probe",
		Connections: []string{"ssh"},
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			return nil, nil
		},
	}

	if _, err := r.Run(context.Background(), task, hosts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opener.mu.Lock()
	got := opener.reconnect
	opener.mu.Unlock()
	if len(got) != 2 || got[0] != "backup" || got[1] != "deploy" {
		t.Errorf("expected fallback sets [backup deploy], got %v", got)
	}
}

func TestSerializedPools(t *testing.T) {
	hosts := makeHosts(5)
	opener := newFakeOpener(0)

	opts := fastOptions()
	opts.NumWorkers = 1
	opts.NumConnectors = 1
	r := NewRetryRunner(opts, opener, testLogger())
	defer r.Close()

	task := &Task{
		Name:        "probe",
		Connections: []string{"ssh"},
		Func: func(_ context.Context, host *inventory.Host, _ Params) (interface{}, error) {
			return host.Name, nil
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for name, res := range results {
		if res.Failed {
			t.Errorf("host %q failed: %v", name, res.Error)
		}
	}
}

func TestRunTimeoutFillsMissingResults(t *testing.T) {
	hosts := makeHosts(3)

	opts := fastOptions()
	opts.TaskTimeout = 50 * time.Millisecond
	opts.ReconnectOnFail = false
	r := NewRetryRunner(opts, nil, testLogger())
	defer r.Close()

	task := &Task{
		Name: "sleeper",
		Func: func(ctx context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != len(hosts) {
		t.Fatalf("expected %d results, got %d", len(hosts), len(results))
	}
	for name, res := range results {
		if !res.Failed {
			t.Errorf("host %q should have failed on timeout", name)
		}
		if !util.IsTimeout(res.Error) {
			t.Errorf("host %q error = %v, want timeout", name, res.Error)
		}
	}
}

func TestRunContextCancelled(t *testing.T) {
	hosts := makeHosts(3)

	opts := fastOptions()
	opts.ReconnectOnFail = false
	r := NewRetryRunner(opts, nil, testLogger())
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())

	task := &Task{
		Name: "sleeper",
		Func: func(ctx context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results, err := r.Run(ctx, task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(hosts) {
		t.Fatalf("expected %d results, got %d", len(hosts), len(results))
	}
	for name, res := range results {
		if !res.Failed {
			t.Errorf("host %q should have failed on cancellation", name)
		}
	}
}

func TestTaskPanicBecomesFailure(t *testing.T) {
	hosts := makeHosts(1)

	opts := fastOptions()
	opts.TaskRetry = 0
	opts.ReconnectOnFail = false
	r := NewRetryRunner(opts, nil, testLogger())
	defer r.Close()

	task := &Task{
		Name: "bomb",
		Func: func(_ context.Context, _ *inventory.Host, _ Params) (interface{}, error) {
			panic("boom")
		},
	}

	results, err := r.Run(context.Background(), task, hosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := results["host-0"]
	if res == nil || !res.Failed {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.Contains(res.ErrorText(), "panicked") {
		t.Errorf("error text %q does not mention panic", res.ErrorText())
	}
}

func TestMatchesStopError(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		err      error
		want     bool
	}{
		{
			name:     "validation error matches default pattern",
			patterns: []string{"*validation error*"},
			err:      errors.New("commit: validation error: bad"),
			want:     true,
		},
		{
			name:     "unrelated error does not match",
			patterns: []string{"*validation error*"},
			err:      errors.New("connection reset"),
			want:     false,
		},
		{
			name:     "custom pattern matches",
			patterns: []string{"*denied*", "*validation error*"},
			err:      errors.New("access denied"),
			want:     true,
		},
		{
			name:     "error text with slashes matches",
			patterns: []string{"*validation error*"},
			err:      errors.New("interface Ge0/0: validation error in candidate config"),
			want:     true,
		},
		{
			name:     "error text with file path matches",
			patterns: []string{"*no such file*"},
			err:      errors.New("open /etc/drover/config.yaml: no such file or directory"),
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesStopError(tt.patterns, tt.err); got != tt.want {
				t.Errorf("matchesStopError() = %v, want %v", got, tt.want)
			}
		})
	}
}
