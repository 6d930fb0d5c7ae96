// Package incident records security incidents and escalates agents to
// suspension when a critical incident asks for it.
package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/ids"
	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"github.com/PrateekKumar1709/policyguard/internal/trust"
	"go.uber.org/zap"
)

var (
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrMissingField    = errors.New("missing required field")
)

// Severity ranks an incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("%w: %q (must be one of low, medium, high, critical)", ErrInvalidSeverity, s)
}

// Type classifies an incident.
type Type string

const (
	TypePolicyViolation    Type = "policy_violation"
	TypeSuspiciousActivity Type = "suspicious_activity"
	TypeUnauthorizedAccess Type = "unauthorized_access"
	TypeRateLimitExceeded  Type = "rate_limit_exceeded"
	TypeDataExfiltration   Type = "data_exfiltration"
	TypeConfigError        Type = "configuration_error"
	TypeOther              Type = "other"
)

// NormalizeType maps unknown incident types to TypeOther.
func NormalizeType(s string) Type {
	switch t := Type(s); t {
	case TypePolicyViolation, TypeSuspiciousActivity, TypeUnauthorizedAccess, TypeRateLimitExceeded,
		TypeDataExfiltration, TypeConfigError, TypeOther:
		return t
	}
	return TypeOther
}

// Source distinguishes engine-generated incidents from reported ones.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceManual Source = "manual"
)

// Incident is a recorded security event. AgentID is empty for system-wide
// reports.
type Incident struct {
	IncidentID        string    `json:"incident_id"`
	AgentID           string    `json:"agent_id,omitempty"`
	Type              Type      `json:"incident_type"`
	Severity          Severity  `json:"severity"`
	Description       string    `json:"description"`
	Source            Source    `json:"source"`
	ActionID          string    `json:"action_id,omitempty"`
	Evidence          string    `json:"evidence,omitempty"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
	Status            string    `json:"status"`
	AutoSuspend       bool      `json:"auto_suspend"`
	AgentSuspended    bool      `json:"agent_suspended"`
	Timestamp         time.Time `json:"timestamp"`
}

// Suspender is the part of the trust store the tracker writes through.
type Suspender interface {
	Get(ctx context.Context, agentID string) (trust.Agent, error)
	Suspend(ctx context.Context, agentID, reason string) (trust.Agent, error)
}

// Tracker owns the incident collection.
type Tracker struct {
	mu     sync.Mutex
	coll   storage.Collection
	agents Suspender
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker builds a Tracker that suspends through agents.
func NewTracker(backend storage.Backend, agents Suspender, logger *zap.Logger) *Tracker {
	return &Tracker{
		coll:   backend.Collection(storage.CollectionIncidents),
		agents: agents,
		logger: logger.Named("incident"),
		now:    time.Now,
	}
}

// ReportParams is a manually reported incident.
type ReportParams struct {
	AgentID           string
	Type              string
	Severity          string
	Description       string
	Evidence          string
	RecommendedAction string
	AutoSuspend       bool
}

// Report records a manual incident. A non-empty AgentID must name a known
// agent. When the incident is critical and AutoSuspend is set, the agent is
// suspended before Report returns.
func (t *Tracker) Report(ctx context.Context, p ReportParams) (Incident, error) {
	if p.Description == "" {
		return Incident{}, fmt.Errorf("%w: description", ErrMissingField)
	}
	sev, err := ParseSeverity(p.Severity)
	if err != nil {
		return Incident{}, err
	}
	if p.AgentID != "" {
		if _, err := t.agents.Get(ctx, p.AgentID); err != nil {
			return Incident{}, err
		}
	}

	inc := Incident{
		IncidentID:        ids.New(ids.IncidentPrefix),
		AgentID:           p.AgentID,
		Type:              NormalizeType(p.Type),
		Severity:          sev,
		Description:       p.Description,
		Source:            SourceManual,
		Evidence:          p.Evidence,
		RecommendedAction: p.RecommendedAction,
		Status:            "open",
		AutoSuspend:       p.AutoSuspend,
		Timestamp:         t.now().UTC(),
	}

	suspend := p.AgentID != "" && sev == SeverityCritical && p.AutoSuspend
	if suspend {
		reason := fmt.Sprintf("Auto-suspended due to critical incident %s: %s", inc.IncidentID, p.Description)
		if _, err := t.agents.Suspend(ctx, p.AgentID, reason); err != nil {
			return Incident{}, fmt.Errorf("Report: %w", err)
		}
		inc.AgentSuspended = true
	}

	if err := t.put(ctx, &inc); err != nil {
		return Incident{}, fmt.Errorf("Report: %w", err)
	}

	t.logger.Warn("incident reported",
		zap.String("incident_id", inc.IncidentID),
		zap.String("agent_id", inc.AgentID),
		zap.String("severity", string(inc.Severity)),
		zap.String("incident_type", string(inc.Type)),
		zap.Bool("agent_suspended", inc.AgentSuspended),
	)
	return inc, nil
}

// Record stores an engine-generated incident. It never suspends.
func (t *Tracker) Record(ctx context.Context, inc Incident) (Incident, error) {
	if inc.IncidentID == "" {
		inc.IncidentID = ids.New(ids.IncidentPrefix)
	}
	if inc.Timestamp.IsZero() {
		inc.Timestamp = t.now().UTC()
	}
	inc.Type = NormalizeType(string(inc.Type))
	inc.Source = SourceAuto
	inc.Status = "open"
	inc.AutoSuspend = false
	inc.AgentSuspended = false

	if err := t.put(ctx, &inc); err != nil {
		return Incident{}, fmt.Errorf("Record: %w", err)
	}
	t.logger.Info("incident recorded",
		zap.String("incident_id", inc.IncidentID),
		zap.String("agent_id", inc.AgentID),
		zap.String("action_id", inc.ActionID),
		zap.String("severity", string(inc.Severity)),
	)
	return inc, nil
}

func (t *Tracker) put(ctx context.Context, inc *Incident) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := storage.PutJSON(ctx, t.coll, inc.IncidentID, inc); err != nil {
		t.logger.Error("failed to persist incident", zap.String("incident_id", inc.IncidentID), zap.Error(err))
		return err
	}
	return nil
}

// Filter narrows List. Zero values do not constrain.
type Filter struct {
	AgentID  string
	Since    time.Time
	Severity Severity
}

// List returns matching incidents, most recent first.
func (t *Tracker) List(ctx context.Context, f Filter) ([]Incident, error) {
	all, err := storage.ScanJSON[Incident](ctx, t.coll)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	out := make([]Incident, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		inc := all[i]
		if f.AgentID != "" && inc.AgentID != f.AgentID {
			continue
		}
		if !f.Since.IsZero() && inc.Timestamp.Before(f.Since) {
			continue
		}
		if f.Severity != "" && inc.Severity != f.Severity {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}
