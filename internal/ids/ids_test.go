package ids

import (
	"strings"
	"testing"
)

func TestNew_Format(t *testing.T) {
	id := New(ActionPrefix)
	if !strings.HasPrefix(id, "act_") {
		t.Fatalf("expected act_ prefix, got %s", id)
	}
	if len(id) != len("act_")+12 {
		t.Errorf("expected 12 hex chars after prefix, got %q", id)
	}
	for _, c := range strings.TrimPrefix(id, "act_") {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("unexpected character %q in %s", c, id)
		}
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(IncidentPrefix)
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
