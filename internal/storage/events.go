package storage

import "time"

// EventWriter mirrors decision events to an analytics sink.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent is the analytics copy of one audit entry.
type DecisionEvent struct {
	EntryID           string
	ActionID          string
	AgentID           string
	TrustLevel        string
	ActionType        string
	Target            string
	Allowed           bool
	RequiresApproval  bool
	Reason            string
	PolicyMatched     string
	ParametersPreview string // First 500 chars
	Timestamp         time.Time
}

// ParametersPreviewLength is the max chars stored in parameters_preview.
const ParametersPreviewLength = 500

// Truncate returns the first maxLen runes of s. It never splits a multi-byte
// UTF-8 character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// NopWriter discards every event.
type NopWriter struct{}

func (NopWriter) Write(*DecisionEvent) {}
func (NopWriter) Close()               {}
