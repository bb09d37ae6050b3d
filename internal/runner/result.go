package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// HostResult is the terminal outcome of one task against one host
type HostResult struct {
	// Host is the inventory name of the host
	Host string `json:"host" yaml:"host"`

	// Task is the name of the task that produced this result
	Task string `json:"task" yaml:"task"`

	// Data is the payload returned by the task (nil on connection failure)
	Data interface{} `json:"result,omitempty" yaml:"result,omitempty"`

	// Failed reports whether the host ended in a terminal failure
	Failed bool `json:"failed" yaml:"failed"`

	// Error holds the terminal failure (nil on success)
	Error error `json:"-" yaml:"-"`

	// ConnectRetries is the number of connection retries consumed
	ConnectRetries int `json:"connect_retries" yaml:"connect_retries"`

	// TaskRetries is the number of task execution retries consumed
	TaskRetries int `json:"task_retries" yaml:"task_retries"`

	// Duration is how long the final task attempt took
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// ErrorText returns the terminal failure text, or "" on success
func (r *HostResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// Results maps host name to that host's terminal outcome.
// A completed run holds exactly one entry per seeded host.
type Results map[string]*HostResult

// HostNames returns the host names in the collection, sorted
func (rs Results) HostNames() []string {
	names := make([]string, 0, len(rs))
	for name := range rs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failed returns only the results that ended in a terminal failure
func (rs Results) Failed() Results {
	failed := make(Results)
	for name, r := range rs {
		if r.Failed {
			failed[name] = r
		}
	}
	return failed
}

// Successful returns only the results that completed without failure
func (rs Results) Successful() Results {
	ok := make(Results)
	for name, r := range rs {
		if !r.Failed {
			ok[name] = r
		}
	}
	return ok
}

// CountFailed returns the number of hosts with a terminal failure
func (rs Results) CountFailed() int {
	count := 0
	for _, r := range rs {
		if r.Failed {
			count++
		}
	}
	return count
}

// CountSuccessful returns the number of hosts that completed successfully
func (rs Results) CountSuccessful() int {
	return len(rs) - rs.CountFailed()
}

// HasFailures reports whether any host ended in a terminal failure
func (rs Results) HasFailures() bool {
	return rs.CountFailed() > 0
}

// Summary aggregates a result collection
type Summary struct {
	Total       int
	Successful  int
	Failed      int
	AvgDuration time.Duration
	MaxDuration time.Duration
}

// Summarize creates a summary of the results
func (rs Results) Summarize() Summary {
	s := Summary{
		Total:      len(rs),
		Failed:     rs.CountFailed(),
		Successful: rs.CountSuccessful(),
	}

	if len(rs) == 0 {
		return s
	}

	var total time.Duration
	for _, r := range rs {
		total += r.Duration
		if r.Duration > s.MaxDuration {
			s.MaxDuration = r.Duration
		}
	}
	s.AvgDuration = total / time.Duration(len(rs))

	return s
}

// String returns a human-readable string representation of the summary
func (s Summary) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total: %d, ", s.Total))
	sb.WriteString(fmt.Sprintf("Successful: %d, ", s.Successful))
	sb.WriteString(fmt.Sprintf("Failed: %d", s.Failed))

	if s.Total > 0 {
		sb.WriteString(fmt.Sprintf(", Avg: %s", s.AvgDuration.Round(time.Millisecond)))
		sb.WriteString(fmt.Sprintf(", Max: %s", s.MaxDuration.Round(time.Millisecond)))
	}

	return sb.String()
}
