// Package trust owns agent identity records: trust level, tool lists and
// suspension state.
package trust

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("agent not found")
	ErrInvalidTrustLevel = errors.New("invalid trust level")
	ErrMissingAgentID    = errors.New("agent_id is required")
)

// Level is an agent's ordinal trust rank.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
	LevelAdmin  Level = "admin"
)

// Levels lists every valid level in ascending order.
var Levels = []Level{LevelLow, LevelMedium, LevelHigh, LevelAdmin}

// Rank returns the ordinal of l, or -1 if l is not a valid level.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	case LevelAdmin:
		return 3
	}
	return -1
}

func (l Level) Valid() bool { return l.Rank() >= 0 }

// ParseLevel validates s as a trust level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q (must be one of low, medium, high, admin)", ErrInvalidTrustLevel, s)
	}
	return l, nil
}

// Status is the lifecycle state of an agent.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Agent is the persisted identity record.
type Agent struct {
	AgentID          string            `json:"agent_id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	TrustLevel       Level             `json:"trust_level"`
	AllowedTools     []string          `json:"allowed_tools"`
	DeniedTools      []string          `json:"denied_tools"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Status           Status            `json:"status"`
	AutoRegistered   bool              `json:"auto_registered"`
	SuspensionReason string            `json:"suspension_reason,omitempty"`
	SuspendedAt      *time.Time        `json:"suspended_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Suspended reports whether the agent is suspended.
func (a Agent) Suspended() bool { return a.Status == StatusSuspended }

// clone returns a deep copy so callers never share slices with the store.
func (a *Agent) clone() Agent {
	c := *a
	c.AllowedTools = append([]string{}, a.AllowedTools...)
	c.DeniedTools = append([]string{}, a.DeniedTools...)
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	if a.SuspendedAt != nil {
		t := *a.SuspendedAt
		c.SuspendedAt = &t
	}
	return c
}
