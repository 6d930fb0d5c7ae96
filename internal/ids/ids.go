// Package ids generates the prefixed identifiers used for actions, audit
// entries and incidents.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

const (
	ActionPrefix   = "act"
	AuditPrefix    = "aud"
	IncidentPrefix = "inc"
)

// New returns prefix + "_" + 12 random hex characters, e.g. "act_3f9c0a1be2d4".
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
