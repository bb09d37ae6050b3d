package task

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestBodySet(t *testing.T) {
	body, err := NewBody().
		Set("config.hostname", "edge-01").
		Set("config.mtu", 9000).
		Res()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := gjson.Get(body, "config.hostname").String(); got != "edge-01" {
		t.Errorf("hostname = %q, want edge-01", got)
	}
	if got := gjson.Get(body, "config.mtu").Int(); got != 9000 {
		t.Errorf("mtu = %d, want 9000", got)
	}
}

func TestBodySetRaw(t *testing.T) {
	body, err := NewBody().
		SetRaw("interfaces", `[{"name":"eth0"},{"name":"eth1"}]`).
		Res()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ifaces := gjson.Get(body, "interfaces").Array()
	if len(ifaces) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(ifaces))
	}
	if got := ifaces[1].Get("name").String(); got != "eth1" {
		t.Errorf("second interface = %q, want eth1", got)
	}
}

func TestBodyDelete(t *testing.T) {
	body, err := NewBody().
		Set("config.hostname", "edge-01").
		Set("config.mtu", 9000).
		Delete("config.mtu").
		Res()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gjson.Get(body, "config.mtu").Exists() {
		t.Error("deleted path should not exist")
	}
	if !gjson.Get(body, "config.hostname").Exists() {
		t.Error("sibling path should survive delete")
	}
}

func TestBodyErrorSticks(t *testing.T) {
	body, err := NewBody().
		Set("", "value").
		Set("config.hostname", "edge-01").
		Res()
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if !strings.Contains(err.Error(), "setting body path") {
		t.Errorf("error = %v", err)
	}
	// later calls must not run once an error is recorded
	if gjson.Get(body, "config.hostname").Exists() {
		t.Error("calls after an error should be skipped")
	}
}

func TestBodyEmpty(t *testing.T) {
	body, err := NewBody().Res()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "{}" {
		t.Errorf("empty body = %q, want {}", body)
	}
}
