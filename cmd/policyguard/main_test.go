package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "policyguard ") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPolicyLint(t *testing.T) {
	out, err := run(t, "policy", "lint", "../../configs/default-policies.yaml")
	if err != nil {
		t.Fatalf("lint default policies: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("expected ok line, got %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("policies:\n  - policy_id: x\n    rules: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "policy", "lint", bad)
	if err == nil {
		t.Fatal("expected lint failure for empty rules")
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("expected FAIL line, got %q", out)
	}
}

func TestCall_MemoryBackend(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "policyguard.yaml")
	body := "storage:\n  driver: memory\nlogger:\n  level: error\n"
	if err := os.WriteFile(cfgFile, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfgFile, "call", "validate_action",
		`{"action_type":"tool_call","target":"read_file","agent_id":"cli-agent"}`)
	if err != nil {
		t.Fatalf("call: %v\n%s", err, out)
	}
	var decision struct {
		AgentID    string `json:"agent_id"`
		TrustLevel string `json:"trust_level"`
		Allowed    bool   `json:"allowed"`
	}
	if err := json.Unmarshal([]byte(out), &decision); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if decision.AgentID != "cli-agent" || decision.TrustLevel != "low" || !decision.Allowed {
		t.Errorf("unexpected decision %+v", decision)
	}

	if _, err := run(t, "--config", cfgFile, "call", "no_such_op"); err == nil {
		t.Error("expected error for unknown operation")
	}
}
