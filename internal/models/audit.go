package models

import "time"

// AuditSeverity is the severity attached to an audit record.
type AuditSeverity string

const (
	AuditInfo  AuditSeverity = "INFO"
	AuditError AuditSeverity = "ERROR"
)

// AuditRecord is one best-effort entry in the audit trail. EventType is
// dot-namespaced, e.g. "branch.merged" or "shadow_index.switched".
type AuditRecord struct {
	EventType     string                 `json:"event_type"`
	EventCategory string                 `json:"event_category"`
	TargetType    string                 `json:"target_type"`
	TargetID      string                 `json:"target_id"`
	Operation     string                 `json:"operation"`
	Severity      AuditSeverity          `json:"severity"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	RecordedAt    time.Time              `json:"recorded_at"`
}

// AlertPayload is the best-effort alert fanned out to notification channels.
type AlertPayload struct {
	Type          string        `json:"type"`
	BranchName    string        `json:"branch_name,omitempty"`
	ShadowIndexID string        `json:"shadow_index_id,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Severity      AuditSeverity `json:"severity"`
	Timestamp     time.Time     `json:"timestamp"`
}
