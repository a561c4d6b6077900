package llm

import "github.com/google/uuid"

// NewSessionID mints a per-pipeline-run identifier used purely to group
// audit-log files (spec.md §4.4.4, §6.3): it must never influence control
// flow, only the on-disk path raw responses are appended under.
func NewSessionID() string {
	return uuid.NewString()
}
