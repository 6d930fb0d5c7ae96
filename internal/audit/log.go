// Package audit is the append-only record of every validation decision.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/ids"
	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

var ErrInvalidQuery = errors.New("invalid audit query")

// Entry is one validation attempt and its outcome. Entries are never
// modified once appended.
type Entry struct {
	EntryID          string    `json:"entry_id"`
	ActionID         string    `json:"action_id"`
	AgentID          string    `json:"agent_id"`
	TrustLevel       string    `json:"trust_level,omitempty"`
	ActionType       string    `json:"action_type"`
	Target           string    `json:"target"`
	Allowed          bool      `json:"allowed"`
	RequiresApproval bool      `json:"requires_approval,omitempty"`
	Reason           string    `json:"reason"`
	Warnings         []string  `json:"warnings,omitempty"`
	PolicyMatched    string    `json:"policy_matched,omitempty"`
	Parameters       string    `json:"parameters,omitempty"`
	Context          string    `json:"context,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Log appends entries to the audit collection and mirrors them to an
// EventWriter.
type Log struct {
	mu     sync.Mutex
	coll   storage.Collection
	writer storage.EventWriter
	logger *zap.Logger
}

// NewLog builds a Log. A nil writer disables mirroring.
func NewLog(backend storage.Backend, writer storage.EventWriter, logger *zap.Logger) *Log {
	if writer == nil {
		writer = storage.NopWriter{}
	}
	return &Log{
		coll:   backend.Collection(storage.CollectionAudit),
		writer: writer,
		logger: logger.Named("audit"),
	}
}

// Append persists e, assigning an entry id if it has none. Only storage
// failures are returned.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.EntryID == "" {
		e.EntryID = ids.New(ids.AuditPrefix)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	err := storage.PutJSON(ctx, l.coll, e.EntryID, &e)
	l.mu.Unlock()
	if err != nil {
		l.logger.Error("failed to append audit entry",
			zap.String("action_id", e.ActionID),
			zap.Error(err),
		)
		return Entry{}, fmt.Errorf("Append: %w", err)
	}

	l.writer.Write(&storage.DecisionEvent{
		EntryID:           e.EntryID,
		ActionID:          e.ActionID,
		AgentID:           e.AgentID,
		TrustLevel:        e.TrustLevel,
		ActionType:        e.ActionType,
		Target:            e.Target,
		Allowed:           e.Allowed,
		RequiresApproval:  e.RequiresApproval,
		Reason:            e.Reason,
		PolicyMatched:     e.PolicyMatched,
		ParametersPreview: storage.Truncate(e.Parameters, storage.ParametersPreviewLength),
		Timestamp:         e.Timestamp,
	})
	return e, nil
}

// Status filters a query by outcome.
type Status string

const (
	StatusAny     Status = ""
	StatusAllowed Status = "allowed"
	StatusDenied  Status = "denied"
)

// Query filters. Zero values do not constrain. IncludeAllowed nil means true.
type Query struct {
	AgentID        string
	ActionType     string
	Since          time.Time
	Status         Status
	IncludeAllowed *bool
	Limit          int
}

// Result holds the newest matching entries, capped at the query limit, and
// the number of entries that matched before the cap.
type Result struct {
	Entries []Entry
	Total   int
}

// Query returns matching entries, most recent first.
func (l *Log) Query(ctx context.Context, q Query) (Result, error) {
	switch q.Status {
	case StatusAny, StatusAllowed, StatusDenied:
	default:
		return Result{}, fmt.Errorf("%w: status %q (must be allowed or denied)", ErrInvalidQuery, q.Status)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	includeAllowed := q.IncludeAllowed == nil || *q.IncludeAllowed

	entries, err := storage.ScanJSON[Entry](ctx, l.coll)
	if err != nil {
		return Result{}, fmt.Errorf("Query: %w", err)
	}

	var matched []Entry
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if q.AgentID != "" && e.AgentID != q.AgentID {
			continue
		}
		if q.ActionType != "" && e.ActionType != q.ActionType {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if e.Allowed && (!includeAllowed || q.Status == StatusDenied) {
			continue
		}
		if !e.Allowed && q.Status == StatusAllowed {
			continue
		}
		matched = append(matched, e)
	}

	res := Result{Total: len(matched), Entries: matched}
	if len(matched) > limit {
		res.Entries = matched[:limit]
	}
	if res.Entries == nil {
		res.Entries = []Entry{}
	}
	return res, nil
}

// Since returns every entry at or after t, oldest first.
func (l *Log) Since(ctx context.Context, t time.Time) ([]Entry, error) {
	entries, err := storage.ScanJSON[Entry](ctx, l.coll)
	if err != nil {
		return nil, fmt.Errorf("Since: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ParseTimeRange parses shorthand windows such as "15m", "1h", "24h", "7d"
// and "30d". An empty string means no window.
func ParseTimeRange(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: time range %q", ErrInvalidQuery, s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: time range %q", ErrInvalidQuery, s)
	}
	return d, nil
}
