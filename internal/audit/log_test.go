package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"go.uber.org/zap"
)

type captureWriter struct {
	mu     sync.Mutex
	events []*storage.DecisionEvent
}

func (w *captureWriter) Write(e *storage.DecisionEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}

func (w *captureWriter) Close() {}

func boolPtr(b bool) *bool { return &b }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, l *Log) {
	t.Helper()
	entries := []Entry{
		{ActionID: "act_1", AgentID: "a1", ActionType: "tool_call", Target: "read_x", Allowed: true, Timestamp: base},
		{ActionID: "act_2", AgentID: "a1", ActionType: "tool_call", Target: "delete_x", Allowed: false, Timestamp: base.Add(time.Minute)},
		{ActionID: "act_3", AgentID: "a2", ActionType: "file_access", Target: "/etc", Allowed: false, Timestamp: base.Add(2 * time.Minute)},
		{ActionID: "act_4", AgentID: "a2", ActionType: "tool_call", Target: "read_y", Allowed: true, Timestamp: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if _, err := l.Append(context.Background(), e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func actionIDs(entries []Entry) string {
	s := ""
	for _, e := range entries {
		s += e.ActionID + ","
	}
	return s
}

func TestAppend_AssignsIDAndMirrors(t *testing.T) {
	w := &captureWriter{}
	l := NewLog(storage.NewMemoryBackend(), w, zap.NewNop())

	e, err := l.Append(context.Background(), Entry{ActionID: "act_1", AgentID: "a1", Allowed: true, Parameters: "x"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.EntryID == "" || e.Timestamp.IsZero() {
		t.Errorf("expected entry id and timestamp, got %+v", e)
	}
	if len(w.events) != 1 || w.events[0].ActionID != "act_1" || w.events[0].ParametersPreview != "x" {
		t.Errorf("expected one mirrored event, got %+v", w.events)
	}
}

func TestQuery_MostRecentFirst(t *testing.T) {
	l := NewLog(storage.NewMemoryBackend(), nil, zap.NewNop())
	seed(t, l)

	res, err := l.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := actionIDs(res.Entries); got != "act_4,act_3,act_2,act_1," {
		t.Errorf("unexpected order: %s", got)
	}
	if res.Total != 4 {
		t.Errorf("expected total 4, got %d", res.Total)
	}
}

func TestQuery_Filters(t *testing.T) {
	l := NewLog(storage.NewMemoryBackend(), nil, zap.NewNop())
	seed(t, l)

	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"agent", Query{AgentID: "a1"}, "act_2,act_1,"},
		{"exclude allowed", Query{IncludeAllowed: boolPtr(false)}, "act_3,act_2,"},
		{"include allowed explicit", Query{AgentID: "a2", IncludeAllowed: boolPtr(true)}, "act_4,act_3,"},
		{"status denied", Query{Status: StatusDenied}, "act_3,act_2,"},
		{"status allowed", Query{Status: StatusAllowed}, "act_4,act_1,"},
		{"action type", Query{ActionType: "file_access"}, "act_3,"},
		{"since", Query{Since: base.Add(2 * time.Minute)}, "act_4,act_3,"},
		{"limit", Query{Limit: 1}, "act_4,"},
		{"no match", Query{AgentID: "nobody"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := l.Query(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if got := actionIDs(res.Entries); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestQuery_LimitKeepsTotal(t *testing.T) {
	l := NewLog(storage.NewMemoryBackend(), nil, zap.NewNop())
	for i := 0; i < DefaultLimit+10; i++ {
		if _, err := l.Append(context.Background(), Entry{ActionID: fmt.Sprintf("act_%d", i), AgentID: "a"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	res, err := l.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Entries) != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, len(res.Entries))
	}
	if res.Total != DefaultLimit+10 {
		t.Errorf("expected total %d, got %d", DefaultLimit+10, res.Total)
	}
}

func TestQuery_InvalidStatus(t *testing.T) {
	l := NewLog(storage.NewMemoryBackend(), nil, zap.NewNop())
	if _, err := l.Query(context.Background(), Query{Status: "maybe"}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSince(t *testing.T) {
	l := NewLog(storage.NewMemoryBackend(), nil, zap.NewNop())
	seed(t, l)

	entries, err := l.Since(context.Background(), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if got := actionIDs(entries); got != "act_2,act_3,act_4," {
		t.Errorf("expected oldest-first act_2..act_4, got %s", got)
	}
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseTimeRange(tt.in)
		if err != nil {
			t.Errorf("ParseTimeRange(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeRange(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"soon", "-1h", "0d", "xd"} {
		if _, err := ParseTimeRange(bad); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("ParseTimeRange(%q): expected ErrInvalidQuery, got %v", bad, err)
		}
	}
}
