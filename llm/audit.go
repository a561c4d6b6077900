package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// AuditLogger appends raw LLM responses to
// {dir}/{session_id}/{agent_id}_*.txt for offline review (spec.md §6.3).
// This is a pure side effect — spec.md §4.4.4 requires it never affects
// control flow, so every method here only logs on failure, never returns
// an error to the caller.
type AuditLogger struct {
	dir     string
	enabled bool
}

// NewAuditLogger builds an AuditLogger. When enabled is false (spec.md
// §6.1 KEEP_RAW_ENGINE_RESPONSES=false), Append is a no-op.
func NewAuditLogger(dir string, enabled bool) *AuditLogger {
	return &AuditLogger{dir: dir, enabled: enabled}
}

// Append writes one raw response under the given session and agent id.
func (a *AuditLogger) Append(sessionID, agentID, rawResponse string) {
	if !a.enabled {
		return
	}
	sessionDir := filepath.Join(a.dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		slog.Warn("llm: audit log mkdir failed", "dir", sessionDir, "error", err)
		return
	}

	name := fmt.Sprintf("%s_%d.txt", agentID, time.Now().UnixNano())
	path := filepath.Join(sessionDir, name)
	if err := os.WriteFile(path, []byte(rawResponse), 0o644); err != nil {
		slog.Warn("llm: audit log write failed", "path", path, "error", err)
	}
}
