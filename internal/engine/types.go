package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/incident"
)

var ErrMissingField = errors.New("missing required field")

// Request is one action an agent wants to perform. Parameters and Context are
// recorded but never interpreted.
type Request struct {
	ActionType string
	Target     string
	AgentID    string
	Parameters string
	Context    string
}

func (r Request) validate() error {
	switch {
	case r.AgentID == "":
		return fmt.Errorf("%w: agent_id", ErrMissingField)
	case r.ActionType == "":
		return fmt.Errorf("%w: action_type", ErrMissingField)
	case r.Target == "":
		return fmt.Errorf("%w: target", ErrMissingField)
	}
	return nil
}

// Decision is the verdict for one Request. RequiresApproval distinguishes
// "needs human sign-off" from a hard deny; both have Allowed=false.
type Decision struct {
	ActionID         string    `json:"action_id"`
	AgentID          string    `json:"agent_id"`
	TrustLevel       string    `json:"trust_level"`
	Allowed          bool      `json:"allowed"`
	RequiresApproval bool      `json:"require_approval"`
	Reason           string    `json:"reason"`
	Warnings         []string  `json:"warnings"`
	PolicyMatched    string    `json:"policy_matched,omitempty"`
	IncidentID       string    `json:"incident_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Step names the stage of evaluation that produced a verdict.
type Step string

const (
	StepSuspended    Step = "suspended"
	StepDeniedTools  Step = "denied_tools"
	StepAllowedTools Step = "allowed_tools"
	StepPolicy       Step = "policy"
	StepDefault      Step = "default"
)

// Warning attached to require_approval decisions.
const WarningRequiresApproval = "requires_approval"

// Reasons that are not derived from a pattern or a rule.
const (
	ReasonSuspended     = "Agent is suspended"
	ReasonNotAllowed    = "target not in allowed_tools"
	ReasonNoPolicy      = "no policy applies"
	ReasonNeedsApproval = "This action requires human approval"
)

// Config sets the severity of incidents the engine records for denials.
type Config struct {
	SuspendedSeverity incident.Severity
	DenySeverity      incident.Severity
	ApprovalSeverity  incident.Severity
}

// DefaultConfig: suspended attempts are high, explicit denials medium and
// approval holds low.
func DefaultConfig() Config {
	return Config{
		SuspendedSeverity: incident.SeverityHigh,
		DenySeverity:      incident.SeverityMedium,
		ApprovalSeverity:  incident.SeverityLow,
	}
}
