package server

import (
	"bytes"
	"encoding/json"

	"github.com/PrateekKumar1709/policyguard/internal/audit"
	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/policy"
	"github.com/PrateekKumar1709/policyguard/internal/trust"
)

// Op is one of the six operations the guard exposes.
type Op string

const (
	OpValidateAction      Op = "validate_action"
	OpRegisterAgent       Op = "register_agent"
	OpCreatePolicy        Op = "create_policy"
	OpGetAuditLog         Op = "get_audit_log"
	OpGetComplianceStatus Op = "get_compliance_status"
	OpReportIncident      Op = "report_incident"
)

// Ops lists every operation.
var Ops = []Op{
	OpValidateAction,
	OpRegisterAgent,
	OpCreatePolicy,
	OpGetAuditLog,
	OpGetComplianceStatus,
	OpReportIncident,
}

// Blob is an opaque argument. It accepts a JSON string verbatim or any other
// JSON value as its raw text.
type Blob string

func (b *Blob) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Blob(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*b = ""
		return nil
	}
	*b = Blob(data)
	return nil
}

type ValidateActionArgs struct {
	ActionType string `json:"action_type"`
	Target     string `json:"target"`
	AgentID    string `json:"agent_id"`
	Parameters Blob   `json:"parameters,omitempty"`
	Context    Blob   `json:"context,omitempty"`
}

type RegisterAgentArgs struct {
	AgentID      string            `json:"agent_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	TrustLevel   string            `json:"trust_level,omitempty"`
	AllowedTools []string          `json:"allowed_tools,omitempty"`
	DeniedTools  []string          `json:"denied_tools,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type RegisterAgentResult struct {
	Success  bool        `json:"success"`
	AgentID  string      `json:"agent_id"`
	Message  string      `json:"message"`
	Updated  bool        `json:"updated"`
	Agent    trust.Agent `json:"agent"`
	Warnings []string    `json:"warnings"`
}

// CreatePolicyArgs.Rules is a JSON array of rules, or a JSON string that
// holds one.
type CreatePolicyArgs struct {
	PolicyID    string          `json:"policy_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Rules       json.RawMessage `json:"rules"`
	Priority    *int            `json:"priority,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
}

type CreatePolicyResult struct {
	Success  bool          `json:"success"`
	PolicyID string        `json:"policy_id"`
	Message  string        `json:"message"`
	Updated  bool          `json:"updated"`
	Policy   policy.Policy `json:"policy"`
}

type GetAuditLogArgs struct {
	AgentID        string `json:"agent_id,omitempty"`
	ActionType     string `json:"action_type,omitempty"`
	TimeRange      string `json:"time_range,omitempty"`
	Status         string `json:"status,omitempty"`
	IncludeAllowed *bool  `json:"include_allowed,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type GetAuditLogResult struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
	Total   int           `json:"total"`
}

type GetComplianceStatusArgs struct {
	TimeRange        string `json:"time_range,omitempty"`
	IncludeIncidents *bool  `json:"include_incidents,omitempty"`
	IncludePolicies  bool   `json:"include_policies,omitempty"`
}

type ReportIncidentArgs struct {
	AgentID           string `json:"agent_id,omitempty"`
	IncidentType      string `json:"incident_type"`
	Severity          string `json:"severity"`
	Description       string `json:"description"`
	Evidence          Blob   `json:"evidence,omitempty"`
	RecommendedAction string `json:"recommended_action,omitempty"`
	AutoSuspend       bool   `json:"auto_suspend,omitempty"`
}

type ReportIncidentResult struct {
	Success        bool              `json:"success"`
	IncidentID     string            `json:"incident_id"`
	Message        string            `json:"message"`
	AgentSuspended bool              `json:"agent_suspended"`
	Incident       incident.Incident `json:"incident"`
}
