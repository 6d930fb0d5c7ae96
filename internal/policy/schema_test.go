package policy

import (
	"errors"
	"testing"
)

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`[
		{"condition": {"tool_pattern": "delete_*", "trust_level_below": "admin"}, "action": "deny", "message": "no deletes"},
		{"condition": {"action_type": "file_*"}, "action": "require_approval"}
	]`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Condition.TrustLevelBelow != "admin" || rules[0].Message != "no deletes" {
		t.Errorf("unexpected first rule: %+v", rules[0])
	}
	if rules[1].Action != ActionRequireApproval {
		t.Errorf("unexpected second rule: %+v", rules[1])
	}
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty body", ``, ErrEmptyRules},
		{"empty array", `[]`, ErrEmptyRules},
		{"not json", `[{`, ErrInvalidPolicy},
		{"not an array", `{"action": "deny"}`, ErrInvalidPolicy},
		{"unknown condition field", `[{"condition": {"tool": "x"}, "action": "deny"}]`, ErrInvalidPolicy},
		{"wrong type", `[{"action": 3}]`, ErrInvalidPolicy},
		{"bad action", `[{"action": "block"}]`, ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.raw)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseRules_MissingActionDefaultsToDeny(t *testing.T) {
	rules, err := ParseRules([]byte(`[{"condition": {"tool_pattern": "rm_*"}}]`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if rules[0].Action != ActionDeny {
		t.Errorf("expected deny, got %q", rules[0].Action)
	}
}

func TestLoadFile(t *testing.T) {
	params, err := LoadFile("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(params))
	}
	first := params[0]
	if first.PolicyID != "destructive-ops" || first.Priority == nil || *first.Priority != 200 {
		t.Errorf("unexpected first policy: %+v", first)
	}
	if len(first.Rules) != 2 || first.Rules[0].Condition.ToolPattern != "delete_*" {
		t.Errorf("unexpected rules: %+v", first.Rules)
	}
	if params[1].Enabled == nil || *params[1].Enabled {
		t.Error("second policy should be explicitly disabled")
	}
}

func TestParseFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"no policies key", "rules: []", ErrInvalidPolicy},
		{"missing id", "policies:\n  - rules:\n      - action: deny\n", ErrInvalidPolicy},
		{"bad yaml", "policies: [", ErrInvalidPolicy},
		{"empty rules", "policies:\n  - policy_id: p\n    rules: []\n", ErrEmptyRules},
		{"bad action", "policies:\n  - policy_id: p\n    rules:\n      - action: nope\n", ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFile([]byte(tt.raw)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
