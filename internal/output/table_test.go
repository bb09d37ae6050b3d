package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aryankumar/drover/internal/runner"
)

func sampleResults() runner.Results {
	return runner.Results{
		"edge-1": &runner.HostResult{
			Host:     "edge-1",
			Task:     "show version",
			Data:     "Arista vEOS",
			Duration: 120 * time.Millisecond,
		},
		"edge-2": &runner.HostResult{
			Host:           "edge-2",
			Task:           "show version",
			Failed:         true,
			Error:          errors.New("connection refused"),
			ConnectRetries: 3,
			Duration:       2 * time.Second,
		},
	}
}

func TestTableFormatResults(t *testing.T) {
	formatter := NewTableFormatter(&Options{NoColor: true})
	buf := &bytes.Buffer{}

	if err := formatter.FormatResults(buf, sampleResults()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"HOST", "STATUS", "RETRIES", "DURATION", "edge-1", "edge-2", "Success", "Failed", "Summary:", "1 successful", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatResultsWide(t *testing.T) {
	formatter := NewTableFormatter(&Options{NoColor: true, Wide: true})
	buf := &bytes.Buffer{}

	if err := formatter.FormatResults(buf, sampleResults()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "DATA") {
		t.Error("wide output missing DATA column")
	}
	if !strings.Contains(out, "Arista vEOS") {
		t.Error("wide output missing result data")
	}
	if !strings.Contains(out, "connection refused") {
		t.Error("wide output missing error text")
	}
}

func TestTableFormatResultsNoHeaders(t *testing.T) {
	formatter := NewTableFormatter(&Options{NoColor: true, NoHeaders: true})
	buf := &bytes.Buffer{}

	if err := formatter.FormatResults(buf, sampleResults()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(buf.String(), "HOST") {
		t.Error("no-headers output should omit the header row")
	}
}

func TestTableFormatResultsEmpty(t *testing.T) {
	formatter := NewTableFormatter(nil)
	buf := &bytes.Buffer{}

	if err := formatter.FormatResults(buf, runner.Results{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "No results") {
		t.Errorf("expected empty marker, got: %s", buf.String())
	}
}

func TestTableFormatMap(t *testing.T) {
	formatter := NewTableFormatter(&Options{NoColor: true})
	buf := &bytes.Buffer{}

	data := map[string]interface{}{"hostname": "edge-1"}
	if err := formatter.Format(buf, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "hostname") || !strings.Contains(out, "edge-1") {
		t.Errorf("unexpected map output:\n%s", out)
	}
}

func TestTableFormatString(t *testing.T) {
	formatter := NewTableFormatter(nil)
	buf := &bytes.Buffer{}

	if err := formatter.Format(buf, "plain text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "plain text") {
		t.Errorf("unexpected string output: %s", buf.String())
	}
}
