// Package server bundles the stores, engine and reporter into one Guard and
// exposes the six operations behind a single dispatcher.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/audit"
	"github.com/PrateekKumar1709/policyguard/internal/compliance"
	"github.com/PrateekKumar1709/policyguard/internal/engine"
	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/metrics"
	"github.com/PrateekKumar1709/policyguard/internal/policy"
	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"github.com/PrateekKumar1709/policyguard/internal/trust"
	"go.uber.org/zap"
)

// Deps is everything New needs. Only Backend and Logger are required.
type Deps struct {
	Backend    storage.Backend
	Writer     storage.EventWriter
	Notifier   trust.Notifier
	Metrics    *metrics.Metrics
	Engine     engine.Config
	Compliance compliance.Config
	AuditLimit int
	Logger     *zap.Logger
}

// Guard is constructed once at startup and passed to every transport.
type Guard struct {
	Agents     *trust.Store
	Policies   *policy.Store
	Audit      *audit.Log
	Incidents  *incident.Tracker
	Engine     *engine.Engine
	Compliance *compliance.Reporter

	auditLimit int
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New loads persisted agents and policies and wires the components.
func New(ctx context.Context, deps Deps) (*Guard, error) {
	logger := deps.Logger
	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}

	var trustOpts []trust.Option
	if deps.Notifier != nil {
		trustOpts = append(trustOpts, trust.WithNotifier(deps.Notifier))
	}
	agents, err := trust.NewStore(ctx, deps.Backend, logger, trustOpts...)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	policies, err := policy.NewStore(ctx, deps.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	auditLog := audit.NewLog(deps.Backend, deps.Writer, logger)
	incidents := incident.NewTracker(deps.Backend, agents, logger)

	limit := deps.AuditLimit
	if limit <= 0 {
		limit = audit.DefaultLimit
	}

	return &Guard{
		Agents:     agents,
		Policies:   policies,
		Audit:      auditLog,
		Incidents:  incidents,
		Engine:     engine.New(agents, policies, auditLog, incidents, deps.Engine, logger, engine.WithMetrics(m)),
		Compliance: compliance.NewReporter(agents, policies, auditLog, incidents, deps.Compliance, logger),
		auditLimit: limit,
		metrics:    m,
		logger:     logger.Named("guard"),
	}, nil
}

// LoadPolicies creates every policy in params, overwriting existing ids.
func (g *Guard) LoadPolicies(ctx context.Context, params []policy.CreateParams) error {
	for _, p := range params {
		if _, err := g.Policies.Create(ctx, p); err != nil {
			return fmt.Errorf("LoadPolicies %s: %w", p.PolicyID, err)
		}
	}
	g.logger.Info("policies loaded", zap.Int("count", len(params)))
	return nil
}

// Dispatch decodes args for op and runs it.
func (g *Guard) Dispatch(ctx context.Context, op Op, args json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}

	var (
		result any
		err    error
	)
	switch op {
	case OpValidateAction:
		var a ValidateActionArgs
		if err = decode(args, &a); err == nil {
			result, err = g.ValidateAction(ctx, a)
		}
	case OpRegisterAgent:
		var a RegisterAgentArgs
		if err = decode(args, &a); err == nil {
			result, err = g.RegisterAgent(ctx, a)
		}
	case OpCreatePolicy:
		var a CreatePolicyArgs
		if err = decode(args, &a); err == nil {
			result, err = g.CreatePolicy(ctx, a)
		}
	case OpGetAuditLog:
		var a GetAuditLogArgs
		if err = decode(args, &a); err == nil {
			result, err = g.GetAuditLog(ctx, a)
		}
	case OpGetComplianceStatus:
		var a GetComplianceStatusArgs
		if err = decode(args, &a); err == nil {
			result, err = g.GetComplianceStatus(ctx, a)
		}
	case OpReportIncident:
		var a ReportIncidentArgs
		if err = decode(args, &a); err == nil {
			result, err = g.ReportIncident(ctx, a)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	g.metrics.ObserveOperation(string(op), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decode(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// ValidateAction evaluates one action request.
func (g *Guard) ValidateAction(ctx context.Context, a ValidateActionArgs) (*engine.Decision, error) {
	return g.Engine.Validate(ctx, engine.Request{
		ActionType: a.ActionType,
		Target:     a.Target,
		AgentID:    a.AgentID,
		Parameters: string(a.Parameters),
		Context:    string(a.Context),
	})
}

// RegisterAgent creates or updates an agent.
func (g *Guard) RegisterAgent(ctx context.Context, a RegisterAgentArgs) (*RegisterAgentResult, error) {
	res, err := g.Agents.Register(ctx, trust.RegisterParams{
		AgentID:      a.AgentID,
		Name:         a.Name,
		Description:  a.Description,
		TrustLevel:   a.TrustLevel,
		AllowedTools: a.AllowedTools,
		DeniedTools:  a.DeniedTools,
		Metadata:     a.Metadata,
	})
	if err != nil {
		return nil, err
	}

	verb := "registered"
	if res.Updated {
		verb = "updated"
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return &RegisterAgentResult{
		Success:  true,
		AgentID:  res.Agent.AgentID,
		Message:  fmt.Sprintf("Agent '%s' %s with trust level '%s'", res.Agent.AgentID, verb, res.Agent.TrustLevel),
		Updated:  res.Updated,
		Agent:    res.Agent,
		Warnings: warnings,
	}, nil
}

// CreatePolicy validates rules against the rule schema and stores the policy.
// A duplicate policy_id overwrites the existing policy.
func (g *Guard) CreatePolicy(ctx context.Context, a CreatePolicyArgs) (*CreatePolicyResult, error) {
	if a.PolicyID == "" {
		return nil, policy.ErrMissingID
	}
	raw, err := unwrapRules(a.Rules)
	if err != nil {
		return nil, err
	}
	rules, err := policy.ParseRules(raw)
	if err != nil {
		return nil, err
	}

	res, err := g.Policies.Create(ctx, policy.CreateParams{
		PolicyID:    a.PolicyID,
		Name:        a.Name,
		Description: a.Description,
		Rules:       rules,
		Priority:    a.Priority,
		Enabled:     a.Enabled,
	})
	if err != nil {
		return nil, err
	}

	verb := "created"
	if res.Updated {
		verb = "updated"
	}
	return &CreatePolicyResult{
		Success:  true,
		PolicyID: res.Policy.PolicyID,
		Message:  fmt.Sprintf("Policy '%s' %s with %d rule(s)", res.Policy.PolicyID, verb, len(res.Policy.Rules)),
		Updated:  res.Updated,
		Policy:   res.Policy,
	}, nil
}

// unwrapRules accepts rules either inline or as a JSON-encoded string.
func unwrapRules(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, policy.ErrEmptyRules
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: rules: %v", ErrInvalidArguments, err)
	}
	return []byte(s), nil
}

// GetAuditLog queries the audit log, most recent first.
func (g *Guard) GetAuditLog(ctx context.Context, a GetAuditLogArgs) (*GetAuditLogResult, error) {
	q := audit.Query{
		AgentID:        a.AgentID,
		ActionType:     a.ActionType,
		Status:         audit.Status(a.Status),
		IncludeAllowed: a.IncludeAllowed,
		Limit:          a.Limit,
	}
	if q.Limit <= 0 {
		q.Limit = g.auditLimit
	}
	window, err := audit.ParseTimeRange(a.TimeRange)
	if err != nil {
		return nil, err
	}
	if window > 0 {
		q.Since = time.Now().UTC().Add(-window)
	}

	res, err := g.Audit.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return &GetAuditLogResult{Entries: res.Entries, Count: len(res.Entries), Total: res.Total}, nil
}

// GetComplianceStatus builds the compliance report. Incidents are included
// unless explicitly turned off.
func (g *Guard) GetComplianceStatus(ctx context.Context, a GetComplianceStatusArgs) (*compliance.Report, error) {
	window, err := audit.ParseTimeRange(a.TimeRange)
	if err != nil {
		return nil, err
	}
	return g.Compliance.Status(ctx, compliance.Options{
		Window:           window,
		IncludeIncidents: a.IncludeIncidents == nil || *a.IncludeIncidents,
		IncludePolicies:  a.IncludePolicies,
	})
}

// ReportIncident records a manual incident and suspends the agent when the
// incident is critical and auto_suspend is set.
func (g *Guard) ReportIncident(ctx context.Context, a ReportIncidentArgs) (*ReportIncidentResult, error) {
	if a.Severity == "" {
		return nil, fmt.Errorf("%w: severity", ErrMissingField)
	}
	inc, err := g.Incidents.Report(ctx, incident.ReportParams{
		AgentID:           a.AgentID,
		Type:              a.IncidentType,
		Severity:          a.Severity,
		Description:       a.Description,
		Evidence:          string(a.Evidence),
		RecommendedAction: a.RecommendedAction,
		AutoSuspend:       a.AutoSuspend,
	})
	if err != nil {
		return nil, err
	}
	g.metrics.ObserveIncident(string(inc.Source), string(inc.Severity), inc.AgentSuspended)

	msg := fmt.Sprintf("Incident %s recorded with severity '%s'", inc.IncidentID, inc.Severity)
	if inc.AgentSuspended {
		msg += fmt.Sprintf("; agent '%s' suspended", inc.AgentID)
	}
	return &ReportIncidentResult{
		Success:        true,
		IncidentID:     inc.IncidentID,
		Message:        msg,
		AgentSuspended: inc.AgentSuspended,
		Incident:       inc,
	}, nil
}
