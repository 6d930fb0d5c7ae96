package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PrateekKumar1709/policyguard/internal/server"
	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *server.Guard) {
	t.Helper()
	g, err := server.New(context.Background(), server.Deps{
		Backend: storage.NewMemoryBackend(),
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(NewRouter(&Dependencies{Guard: g, Logger: zap.NewNop()}))
	t.Cleanup(ts.Close)
	return ts, g
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw any
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out, _ = raw.(map[string]any)
	}
	return resp, out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, ts, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected healthz response: %d %v", resp.StatusCode, body)
	}
}

func TestTools_ValidateFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := do(t, ts, http.MethodPost, "/v1/tools/register_agent", `{"agent_id":"a1","trust_level":"low"}`)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("register failed: %d %v", resp.StatusCode, body)
	}

	resp, _ = do(t, ts, http.MethodPost, "/v1/tools/create_policy",
		`{"policy_id":"no-delete","rules":[{"condition":{"tool_pattern":"delete_*","trust_level_below":"admin"},"action":"deny"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create_policy failed: %d", resp.StatusCode)
	}

	resp, body = do(t, ts, http.MethodPost, "/v1/tools/validate_action",
		`{"action_type":"tool_call","target":"delete_records","agent_id":"a1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate_action failed: %d", resp.StatusCode)
	}
	if body["allowed"] != false {
		t.Errorf("expected allowed=false, got %v", body)
	}
	if id, _ := body["action_id"].(string); !strings.HasPrefix(id, "act_") {
		t.Errorf("expected act_ id, got %v", body["action_id"])
	}
}

func TestTools_ErrorStatus(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{"unknown tool", "/v1/tools/format_disk", `{}`, http.StatusNotFound, "invalid_argument"},
		{"bad trust level", "/v1/tools/register_agent", `{"agent_id":"a","trust_level":"root"}`, http.StatusUnprocessableEntity, "invalid_trust_level"},
		{"empty rules", "/v1/tools/create_policy", `{"policy_id":"p","rules":[]}`, http.StatusUnprocessableEntity, "empty_rules"},
		{"invalid action", "/v1/tools/create_policy", `{"policy_id":"p","rules":[{"action":"maybe"}]}`, http.StatusUnprocessableEntity, "invalid_action"},
		{"missing field", "/v1/tools/validate_action", `{"agent_id":"a"}`, http.StatusBadRequest, "invalid_argument"},
		{"unknown agent", "/v1/tools/report_incident", `{"agent_id":"ghost","severity":"high","description":"x"}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, ts, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d (%v)", tt.status, resp.StatusCode, body)
			}
			if body["kind"] != tt.kind {
				t.Errorf("expected kind %s, got %v", tt.kind, body["kind"])
			}
		})
	}
}

func TestPolicies_Toggle(t *testing.T) {
	ts, g := newTestServer(t)
	if _, err := g.Dispatch(context.Background(), server.OpCreatePolicy,
		json.RawMessage(`{"policy_id":"p","rules":[{"action":"deny"}]}`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	resp, body := do(t, ts, http.MethodPatch, "/v1/policies/p", `{"enabled":false}`)
	if resp.StatusCode != http.StatusOK || body["enabled"] != false {
		t.Fatalf("unexpected toggle response: %d %v", resp.StatusCode, body)
	}
	if n := len(g.Policies.ListEnabled(context.Background())); n != 0 {
		t.Errorf("expected no enabled policies, got %d", n)
	}

	resp, _ = do(t, ts, http.MethodPatch, "/v1/policies/missing", `{"enabled":true}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	resp, _ = do(t, ts, http.MethodPatch, "/v1/policies/p", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without enabled, got %d", resp.StatusCode)
	}
}

func TestAgents_Get(t *testing.T) {
	ts, g := newTestServer(t)
	if _, err := g.Dispatch(context.Background(), server.OpRegisterAgent,
		json.RawMessage(`{"agent_id":"a1","trust_level":"high"}`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	resp, body := do(t, ts, http.MethodGet, "/v1/agents/a1", "")
	if resp.StatusCode != http.StatusOK || body["trust_level"] != "high" {
		t.Errorf("unexpected agent response: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, ts, http.MethodGet, "/v1/agents/nobody", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestIncidents_BadTimeRange(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := do(t, ts, http.MethodGet, "/v1/incidents?time_range=eventually", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
