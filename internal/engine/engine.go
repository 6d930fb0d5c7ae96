// Package engine turns an action request into an allow/deny decision.
//
// Evaluation order, first match wins:
//
//  1. suspended agent
//  2. denied_tools pattern
//  3. allowed_tools miss (only when the list is non-empty)
//  4. enabled policies by priority, then creation order; rules in order
//  5. default allow
//
// Every call writes exactly one audit entry. A denial from steps 1-4 also
// records an automatic incident, which never suspends the agent.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/audit"
	"github.com/PrateekKumar1709/policyguard/internal/ids"
	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/match"
	"github.com/PrateekKumar1709/policyguard/internal/metrics"
	"github.com/PrateekKumar1709/policyguard/internal/policy"
	"github.com/PrateekKumar1709/policyguard/internal/trust"
	"go.uber.org/zap"
)

// AgentResolver is the trust store read path used in step 1.
type AgentResolver interface {
	GetOrCreate(ctx context.Context, agentID string) (trust.Agent, bool, error)
}

// PolicySource returns enabled policies in evaluation order.
type PolicySource interface {
	ListEnabled(ctx context.Context) []policy.Policy
}

type AuditAppender interface {
	Append(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

type IncidentRecorder interface {
	Record(ctx context.Context, inc incident.Incident) (incident.Incident, error)
}

// Engine holds no state of its own beyond its collaborators.
type Engine struct {
	agents    AgentResolver
	policies  PolicySource
	audit     AuditAppender
	incidents IncidentRecorder
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine. Zero severities in cfg fall back to DefaultConfig.
func New(agents AgentResolver, policies PolicySource, auditLog AuditAppender, incidents IncidentRecorder, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.SuspendedSeverity == "" {
		cfg.SuspendedSeverity = def.SuspendedSeverity
	}
	if cfg.DenySeverity == "" {
		cfg.DenySeverity = def.DenySeverity
	}
	if cfg.ApprovalSeverity == "" {
		cfg.ApprovalSeverity = def.ApprovalSeverity
	}

	e := &Engine{
		agents:    agents,
		policies:  policies,
		audit:     auditLog,
		incidents: incidents,
		cfg:       cfg,
		logger:    logger.Named("engine"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// verdict is the outcome of evaluate before anything is written.
type verdict struct {
	allowed  bool
	approval bool
	reason   string
	policyID string
	step     Step
}

// Validate evaluates req, records it, and returns the decision. A denial is a
// successful result; errors mean malformed input or a storage failure.
func (e *Engine) Validate(ctx context.Context, req Request) (*Decision, error) {
	start := e.now()
	if err := req.validate(); err != nil {
		return nil, err
	}

	agent, created, err := e.agents.GetOrCreate(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("Validate: %w", err)
	}

	v := e.evaluate(ctx, agent, req)

	d := &Decision{
		ActionID:         ids.New(ids.ActionPrefix),
		AgentID:          agent.AgentID,
		TrustLevel:       string(agent.TrustLevel),
		Allowed:          v.allowed,
		RequiresApproval: v.approval,
		Reason:           v.reason,
		Warnings:         []string{},
		PolicyMatched:    v.policyID,
		Timestamp:        start.UTC(),
	}
	if created {
		d.Warnings = append(d.Warnings, fmt.Sprintf("Agent '%s' was auto-registered with trust level 'low'", agent.AgentID))
	}
	if v.approval {
		d.Warnings = append(d.Warnings, WarningRequiresApproval)
	}

	if _, err := e.audit.Append(ctx, audit.Entry{
		ActionID:         d.ActionID,
		AgentID:          d.AgentID,
		TrustLevel:       d.TrustLevel,
		ActionType:       req.ActionType,
		Target:           req.Target,
		Allowed:          d.Allowed,
		RequiresApproval: d.RequiresApproval,
		Reason:           d.Reason,
		Warnings:         d.Warnings,
		PolicyMatched:    d.PolicyMatched,
		Parameters:       req.Parameters,
		Context:          req.Context,
		Timestamp:        d.Timestamp,
	}); err != nil {
		e.observeStorageError("audit")
		return nil, fmt.Errorf("Validate: %w", err)
	}

	if !d.Allowed && v.step != StepDefault {
		inc, err := e.incidents.Record(ctx, e.autoIncident(d, req, v))
		if err != nil {
			e.observeStorageError("incidents")
			return nil, fmt.Errorf("Validate: %w", err)
		}
		d.IncidentID = inc.IncidentID
		if e.metrics != nil {
			e.metrics.ObserveIncident(string(inc.Source), string(inc.Severity), false)
		}
	}

	if d.Allowed {
		e.logger.Info("action allowed",
			zap.String("action_id", d.ActionID),
			zap.String("agent_id", d.AgentID),
			zap.String("target", req.Target),
			zap.String("step", string(v.step)),
		)
	} else {
		e.logger.Warn("action denied",
			zap.String("action_id", d.ActionID),
			zap.String("agent_id", d.AgentID),
			zap.String("action_type", req.ActionType),
			zap.String("target", req.Target),
			zap.String("step", string(v.step)),
			zap.String("reason", d.Reason),
			zap.Bool("requires_approval", d.RequiresApproval),
		)
	}
	if e.metrics != nil {
		e.metrics.ObserveDecision(verdictLabel(d), string(v.step), e.now().Sub(start))
	}
	return d, nil
}

func (e *Engine) evaluate(ctx context.Context, agent trust.Agent, req Request) verdict {
	if agent.Suspended() {
		return verdict{reason: ReasonSuspended, step: StepSuspended}
	}

	if p, ok := match.Any(agent.DeniedTools, req.Target); ok {
		return verdict{
			reason: fmt.Sprintf("target '%s' matches denied_tools pattern '%s'", req.Target, p),
			step:   StepDeniedTools,
		}
	}

	if len(agent.AllowedTools) > 0 {
		if _, ok := match.Any(agent.AllowedTools, req.Target); !ok {
			return verdict{reason: ReasonNotAllowed, step: StepAllowedTools}
		}
	}

	for _, p := range e.policies.ListEnabled(ctx) {
		for _, r := range p.Rules {
			if !conditionMatches(r.Condition, agent, req) {
				continue
			}
			v := verdict{policyID: p.PolicyID, step: StepPolicy, reason: r.Message}
			switch r.Action {
			case policy.ActionAllow:
				v.allowed = true
				if v.reason == "" {
					v.reason = fmt.Sprintf("allowed by policy '%s'", p.PolicyID)
				}
			case policy.ActionRequireApproval:
				v.approval = true
				if v.reason == "" {
					v.reason = ReasonNeedsApproval
				}
			default:
				if v.reason == "" {
					v.reason = fmt.Sprintf("denied by policy '%s'", p.PolicyID)
				}
			}
			return v
		}
	}

	return verdict{allowed: true, reason: ReasonNoPolicy, step: StepDefault}
}

// conditionMatches treats every empty field as unconstrained.
func conditionMatches(c policy.Condition, agent trust.Agent, req Request) bool {
	if c.ToolPattern != "" && !match.Matches(c.ToolPattern, req.Target) {
		return false
	}
	if c.ActionType != "" && !match.Matches(c.ActionType, req.ActionType) {
		return false
	}
	rank := agent.TrustLevel.Rank()
	if c.TrustLevelAtLeast != "" && rank < c.TrustLevelAtLeast.Rank() {
		return false
	}
	if c.TrustLevelBelow != "" && rank >= c.TrustLevelBelow.Rank() {
		return false
	}
	return true
}

func (e *Engine) autoIncident(d *Decision, req Request, v verdict) incident.Incident {
	inc := incident.Incident{
		AgentID:  d.AgentID,
		ActionID: d.ActionID,
		Type:     incident.TypePolicyViolation,
		Severity: e.cfg.DenySeverity,
		Description: fmt.Sprintf("Action '%s' on '%s' was denied: %s",
			req.ActionType, req.Target, d.Reason),
		Evidence:  req.Parameters,
		Timestamp: d.Timestamp,
	}
	switch {
	case v.step == StepSuspended:
		inc.Type = incident.TypeUnauthorizedAccess
		inc.Severity = e.cfg.SuspendedSeverity
		inc.Description = fmt.Sprintf("Suspended agent attempted '%s' on '%s'", req.ActionType, req.Target)
		inc.RecommendedAction = "Review the suspension and the attempted action"
	case v.approval:
		inc.Severity = e.cfg.ApprovalSeverity
		inc.Description = fmt.Sprintf("Action '%s' on '%s' is waiting for approval: %s",
			req.ActionType, req.Target, d.Reason)
		inc.RecommendedAction = "Approve or reject the action"
	default:
		inc.RecommendedAction = "Review agent behavior and policy configuration"
	}
	return inc
}

func (e *Engine) observeStorageError(collection string) {
	if e.metrics != nil {
		e.metrics.ObserveStorageError(collection)
	}
}

func verdictLabel(d *Decision) string {
	switch {
	case d.Allowed:
		return metrics.VerdictAllow
	case d.RequiresApproval:
		return metrics.VerdictRequireApproval
	}
	return metrics.VerdictDeny
}
