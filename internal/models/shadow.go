package models

import "time"

// ShadowBuildStatus tracks a shadow index through its lifecycle.
// FAILED and SWITCHED are terminal.
type ShadowBuildStatus string

const (
	ShadowBuilding ShadowBuildStatus = "BUILDING"
	ShadowComplete ShadowBuildStatus = "COMPLETE"
	ShadowFailed   ShadowBuildStatus = "FAILED"
	ShadowSwitched ShadowBuildStatus = "SWITCHED"
)

// Terminal reports whether the status permits no further transitions.
func (s ShadowBuildStatus) Terminal() bool {
	return s == ShadowFailed || s == ShadowSwitched
}

// ShadowIndex is a replacement index built alongside the live one and
// swapped in atomically. Mutated only by the shadow index manager.
type ShadowIndex struct {
	ID          string            `json:"id"`
	BranchName  string            `json:"branch_name"`
	IndexType   string            `json:"index_type"`
	ClassName   string            `json:"class_name,omitempty"` // backing class in the index store
	BuildStatus ShadowBuildStatus `json:"build_status"`
	RecordCount int64             `json:"record_count"`
	SizeBytes   int64             `json:"size_bytes"`
	Source      string            `json:"source,omitempty"` // what produced the build
	FailReason  string            `json:"fail_reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt time.Time         `json:"completed_at,omitzero"`
	SwitchedAt  time.Time         `json:"switched_at,omitzero"`
}

// Validation check names accepted in SwitchRequest.Checks.
const (
	CheckRecordCount = "RECORD_COUNT_VALIDATION"
	CheckSizeDelta   = "SIZE_VALIDATION"
)

// SwitchRequest configures an atomic switch attempt.
type SwitchRequest struct {
	Checks             []string `json:"validation_checks"`
	BackupBeforeSwitch bool     `json:"backup_before_switch"`
	TimeoutSeconds     int      `json:"switch_timeout_seconds"`
}

// SwitchResult is the outcome of an atomic switch attempt.
// A failed switch always means the live pointer is unchanged.
type SwitchResult struct {
	Success          bool   `json:"success"`
	SwitchDurationMS int64  `json:"switch_duration_ms"`
	ValidationPassed bool   `json:"validation_passed"`
	Message          string `json:"message,omitempty"`
	BackupID         string `json:"backup_id,omitempty"`
}

// LivePointer records which index currently serves a (branch, index_type).
type LivePointer struct {
	BranchName    string    `json:"branch_name"`
	IndexType     string    `json:"index_type"`
	ShadowID      string    `json:"shadow_id"`
	RecordCount   int64     `json:"record_count"`
	SizeBytes     int64     `json:"size_bytes"`
	SwitchedAt    time.Time `json:"switched_at"`
	PrevShadowID  string    `json:"prev_shadow_id,omitempty"`
	PrevSizeBytes int64     `json:"prev_size_bytes,omitempty"`
}
