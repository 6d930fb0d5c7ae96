// Package policy owns named, prioritized rule sets and their validation.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/trust"
)

var (
	ErrNotFound      = errors.New("policy not found")
	ErrEmptyRules    = errors.New("policy must have at least one rule")
	ErrInvalidAction = errors.New("invalid rule action")
	ErrInvalidPolicy = errors.New("invalid policy document")
	ErrMissingID     = errors.New("policy_id is required")
)

// DefaultPriority applies when a policy is created without one.
const DefaultPriority = 100

// Action is the verdict a matching rule produces.
type Action string

const (
	ActionAllow           Action = "allow"
	ActionDeny            Action = "deny"
	ActionRequireApproval Action = "require_approval"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAllow, ActionDeny, ActionRequireApproval:
		return true
	}
	return false
}

// Condition constrains when a rule applies. Empty fields do not constrain.
type Condition struct {
	ToolPattern       string      `json:"tool_pattern,omitempty" yaml:"tool_pattern,omitempty"`
	ActionType        string      `json:"action_type,omitempty" yaml:"action_type,omitempty"`
	TrustLevelAtLeast trust.Level `json:"trust_level_at_least,omitempty" yaml:"trust_level_at_least,omitempty"`
	TrustLevelBelow   trust.Level `json:"trust_level_below,omitempty" yaml:"trust_level_below,omitempty"`
}

// Rule pairs a condition with an action.
type Rule struct {
	Condition Condition `json:"condition" yaml:"condition"`
	Action    Action    `json:"action" yaml:"action"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
}

// Policy is the persisted rule set. Seq records creation order and breaks
// priority ties.
type Policy struct {
	PolicyID    string    `json:"policy_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Rules       []Rule    `json:"rules"`
	Enabled     bool      `json:"enabled"`
	Priority    int       `json:"priority"`
	Seq         int64     `json:"seq"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Policy) clone() Policy {
	c := *p
	c.Rules = append([]Rule(nil), p.Rules...)
	return c
}

// ValidateRules checks rules without touching any store. A rule with no
// action defaults to deny.
func ValidateRules(rules []Rule) ([]Rule, error) {
	if len(rules) == 0 {
		return nil, ErrEmptyRules
	}
	out := make([]Rule, len(rules))
	for i, r := range rules {
		if r.Action == "" {
			r.Action = ActionDeny
		}
		if !r.Action.Valid() {
			return nil, fmt.Errorf("%w: rule %d has action %q (must be one of allow, deny, require_approval)", ErrInvalidAction, i, r.Action)
		}
		if l := r.Condition.TrustLevelAtLeast; l != "" && !l.Valid() {
			return nil, fmt.Errorf("rule %d trust_level_at_least: %w: %q", i, trust.ErrInvalidTrustLevel, l)
		}
		if l := r.Condition.TrustLevelBelow; l != "" && !l.Valid() {
			return nil, fmt.Errorf("rule %d trust_level_below: %w: %q", i, trust.ErrInvalidTrustLevel, l)
		}
		out[i] = r
	}
	return out, nil
}
