// Package compliance aggregates the read side of every store into a single
// posture report. It never mutates anything.
package compliance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/audit"
	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/policy"
	"github.com/PrateekKumar1709/policyguard/internal/trust"
	"go.uber.org/zap"
)

const (
	DefaultWindow        = 24 * time.Hour
	DefaultPenaltyWeight = 5.0

	// Denial rate thresholds, in percent.
	warningDenialRate  = 10.0
	criticalDenialRate = 20.0

	topOffenders = 5
)

// Overall health derived from the denial rate.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

type AgentLister interface {
	List(ctx context.Context) []trust.Agent
}

type PolicyLister interface {
	List(ctx context.Context) []policy.Policy
}

type AuditReader interface {
	Since(ctx context.Context, t time.Time) ([]audit.Entry, error)
}

type IncidentLister interface {
	List(ctx context.Context, f incident.Filter) ([]incident.Incident, error)
}

// Config pins the recent-violation window and the score penalty.
type Config struct {
	Window        time.Duration
	PenaltyWeight float64
}

type Reporter struct {
	agents    AgentLister
	policies  PolicyLister
	audit     AuditReader
	incidents IncidentLister
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewReporter fills zero config values with DefaultWindow and
// DefaultPenaltyWeight.
func NewReporter(agents AgentLister, policies PolicyLister, auditLog AuditReader, incidents IncidentLister, cfg Config, logger *zap.Logger) *Reporter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.PenaltyWeight <= 0 {
		cfg.PenaltyWeight = DefaultPenaltyWeight
	}
	return &Reporter{
		agents:    agents,
		policies:  policies,
		audit:     auditLog,
		incidents: incidents,
		cfg:       cfg,
		logger:    logger.Named("compliance"),
		now:       time.Now,
	}
}

// Options tune a single report. A zero Window uses the configured one.
type Options struct {
	Window           time.Duration
	IncludeIncidents bool
	IncludePolicies  bool
}

type PolicySummary struct {
	PolicyID string `json:"policy_id"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
	Rules    int    `json:"rules"`
}

type Offender struct {
	AgentID    string `json:"agent_id"`
	Violations int    `json:"violations"`
}

type ActionCounts struct {
	Total   int `json:"total"`
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

type IncidentSummary struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}

// Report is the compliance snapshot.
type Report struct {
	GeneratedAt     time.Time `json:"generated_at"`
	Window          string    `json:"window"`
	Status          string    `json:"status"`
	StatusMessage   string    `json:"status_message"`
	ComplianceScore float64   `json:"compliance_score"`

	TotalAgents        int            `json:"total_agents"`
	ActiveAgents       int            `json:"active_agents"`
	SuspendedAgents    int            `json:"suspended_agents"`
	AgentsByTrustLevel map[string]int `json:"agents_by_trust_level"`

	TotalPolicies    int             `json:"total_policies"`
	EnabledPolicies  int             `json:"enabled_policies"`
	DisabledPolicies int             `json:"disabled_policies"`
	Policies         []PolicySummary `json:"policies,omitempty"`

	RecentViolations int                     `json:"recent_violations"`
	TotalActions     int                     `json:"total_actions"`
	AllowedActions   int                     `json:"allowed_actions"`
	DeniedActions    int                     `json:"denied_actions"`
	DenialRate       float64                 `json:"denial_rate"`
	TopOffenders     []Offender              `json:"top_offenders"`
	ActionBreakdown  map[string]ActionCounts `json:"action_breakdown"`

	Incidents       *IncidentSummary `json:"incidents,omitempty"`
	Recommendations []string         `json:"recommendations"`
}

// Score is 100 - min(100, violations * penaltyWeight), clamped to [0, 100].
func Score(violations int, penaltyWeight float64) float64 {
	penalty := math.Min(100, float64(violations)*penaltyWeight)
	return math.Max(0, math.Min(100, 100-penalty))
}

// Status builds a report for the window ending now.
func (r *Reporter) Status(ctx context.Context, opts Options) (*Report, error) {
	window := opts.Window
	if window <= 0 {
		window = r.cfg.Window
	}
	now := r.now().UTC()
	since := now.Add(-window)

	rep := &Report{
		GeneratedAt:        now,
		Window:             window.String(),
		AgentsByTrustLevel: make(map[string]int, len(trust.Levels)),
		TopOffenders:       []Offender{},
		ActionBreakdown:    make(map[string]ActionCounts),
	}
	for _, l := range trust.Levels {
		rep.AgentsByTrustLevel[string(l)] = 0
	}

	autoRegistered := 0
	for _, a := range r.agents.List(ctx) {
		rep.TotalAgents++
		if a.Suspended() {
			rep.SuspendedAgents++
		} else {
			rep.ActiveAgents++
		}
		rep.AgentsByTrustLevel[string(a.TrustLevel)]++
		if a.AutoRegistered {
			autoRegistered++
		}
	}

	for _, p := range r.policies.List(ctx) {
		rep.TotalPolicies++
		if p.Enabled {
			rep.EnabledPolicies++
		} else {
			rep.DisabledPolicies++
		}
		if opts.IncludePolicies {
			rep.Policies = append(rep.Policies, PolicySummary{
				PolicyID: p.PolicyID,
				Name:     p.Name,
				Enabled:  p.Enabled,
				Priority: p.Priority,
				Rules:    len(p.Rules),
			})
		}
	}

	entries, err := r.audit.Since(ctx, since)
	if err != nil {
		r.logger.Error("failed to read audit log", zap.Error(err))
		return nil, fmt.Errorf("Status: %w", err)
	}
	violations := make(map[string]int)
	for _, e := range entries {
		rep.TotalActions++
		counts := rep.ActionBreakdown[e.ActionType]
		counts.Total++
		if e.Allowed {
			rep.AllowedActions++
			counts.Allowed++
		} else {
			rep.DeniedActions++
			counts.Denied++
			violations[e.AgentID]++
		}
		rep.ActionBreakdown[e.ActionType] = counts
	}
	rep.RecentViolations = rep.DeniedActions
	if rep.TotalActions > 0 {
		rep.DenialRate = math.Round(float64(rep.DeniedActions)/float64(rep.TotalActions)*10000) / 100
	}
	rep.TopOffenders = offenders(violations, topOffenders)
	rep.ComplianceScore = Score(rep.RecentViolations, r.cfg.PenaltyWeight)

	openCritical := 0
	if opts.IncludeIncidents {
		incs, err := r.incidents.List(ctx, incident.Filter{Since: since})
		if err != nil {
			r.logger.Error("failed to read incidents", zap.Error(err))
			return nil, fmt.Errorf("Status: %w", err)
		}
		sum := &IncidentSummary{
			BySeverity: make(map[string]int, len(incident.Severities)),
			ByType:     make(map[string]int),
		}
		for _, s := range incident.Severities {
			sum.BySeverity[string(s)] = 0
		}
		for _, inc := range incs {
			sum.Total++
			sum.BySeverity[string(inc.Severity)]++
			sum.ByType[string(inc.Type)]++
			if inc.Status == "open" {
				sum.Open++
				if inc.Severity == incident.SeverityCritical {
					openCritical++
				}
			}
		}
		rep.Incidents = sum
	}

	switch {
	case rep.DenialRate > criticalDenialRate:
		rep.Status = StatusCritical
		rep.StatusMessage = fmt.Sprintf("Denial rate %.2f%% exceeds %.0f%%", rep.DenialRate, criticalDenialRate)
	case rep.DenialRate > warningDenialRate:
		rep.Status = StatusWarning
		rep.StatusMessage = fmt.Sprintf("Denial rate %.2f%% exceeds %.0f%%", rep.DenialRate, warningDenialRate)
	default:
		rep.Status = StatusHealthy
		rep.StatusMessage = "Operating within normal parameters"
	}

	rep.Recommendations = recommendations(rep, autoRegistered, openCritical)
	return rep, nil
}

func offenders(violations map[string]int, n int) []Offender {
	out := make([]Offender, 0, len(violations))
	for id, count := range violations {
		out = append(out, Offender{AgentID: id, Violations: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Violations != out[j].Violations {
			return out[i].Violations > out[j].Violations
		}
		return out[i].AgentID < out[j].AgentID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func recommendations(rep *Report, autoRegistered, openCritical int) []string {
	var recs []string
	if rep.SuspendedAgents > 0 {
		recs = append(recs, fmt.Sprintf("Review %d suspended agent(s) and resolve the incidents that suspended them", rep.SuspendedAgents))
	}
	if openCritical > 0 {
		recs = append(recs, fmt.Sprintf("Investigate %d open critical incident(s)", openCritical))
	}
	if rep.DenialRate > warningDenialRate {
		recs = append(recs, "High denial rate: review agent permissions and policy rules for over-broad matches")
	}
	if rep.EnabledPolicies == 0 {
		recs = append(recs, "No enabled policies: every action that passes agent tool lists is allowed by default")
	}
	if autoRegistered > 0 {
		recs = append(recs, fmt.Sprintf("Register %d auto-registered agent(s) explicitly to assign trust levels and tool lists", autoRegistered))
	}
	if len(recs) == 0 {
		recs = append(recs, "No issues detected")
	}
	return recs
}
