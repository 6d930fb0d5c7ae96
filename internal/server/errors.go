package server

import (
	"errors"

	"github.com/PrateekKumar1709/policyguard/internal/audit"
	"github.com/PrateekKumar1709/policyguard/internal/engine"
	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/policy"
	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"github.com/PrateekKumar1709/policyguard/internal/trust"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrMissingField     = errors.New("missing required field")
)

// ErrorKind is the typed failure surfaced to callers of the six verbs.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTrustLevel ErrorKind = "invalid_trust_level"
	KindInvalidAction     ErrorKind = "invalid_action"
	KindEmptyRules        ErrorKind = "empty_rules"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindStorage           ErrorKind = "storage_error"
	KindInternal          ErrorKind = "internal"
)

// Classify maps an operation error to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, storage.ErrStorage):
		return KindStorage
	case errors.Is(err, trust.ErrNotFound), errors.Is(err, policy.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, trust.ErrInvalidTrustLevel):
		return KindInvalidTrustLevel
	case errors.Is(err, policy.ErrInvalidAction):
		return KindInvalidAction
	case errors.Is(err, policy.ErrEmptyRules):
		return KindEmptyRules
	case errors.Is(err, ErrUnknownOperation),
		errors.Is(err, ErrInvalidArguments),
		errors.Is(err, ErrMissingField),
		errors.Is(err, engine.ErrMissingField),
		errors.Is(err, trust.ErrMissingAgentID),
		errors.Is(err, policy.ErrMissingID),
		errors.Is(err, policy.ErrInvalidPolicy),
		errors.Is(err, incident.ErrInvalidSeverity),
		errors.Is(err, incident.ErrMissingField),
		errors.Is(err, audit.ErrInvalidQuery):
		return KindInvalidArgument
	}
	return KindInternal
}
