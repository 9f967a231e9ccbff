package models

import "time"

// IndexingMode selects the indexing path an event took.
type IndexingMode string

const (
	ModeTraditional IndexingMode = "traditional"
	ModeShadow      IndexingMode = "shadow"
)

// EventStatus is the reported outcome of an indexing round.
type EventStatus string

const (
	EventSuccess EventStatus = "success"
	EventFailure EventStatus = "failure"
)

// ValidationResults carries the indexing subsystem's own validation verdict.
type ValidationResults struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// IndexingEvent is the inbound event emitted by the external indexing
// subsystem when an indexing round finishes.
type IndexingEvent struct {
	ID                string            `json:"id"`
	BranchName        string            `json:"branch_name"`
	IndexingMode      IndexingMode      `json:"indexing_mode"`
	ShadowIndexID     string            `json:"shadow_index_id,omitempty"`
	Status            EventStatus       `json:"status"`
	ResourceTypes     []string          `json:"resource_types,omitempty"`
	RecordsIndexed    int64             `json:"records_indexed"`
	IndexSizeBytes    int64             `json:"index_size_bytes"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       time.Time         `json:"completed_at"`
	ValidationResults ValidationResults `json:"validation_results"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	CompletedBy       string            `json:"completed_by,omitempty"`
}

// ProcessedEvent records the outcome of a handled event for idempotent
// redelivery handling.
type ProcessedEvent struct {
	EventID     string    `json:"event_id"`
	BranchName  string    `json:"branch_name"`
	Outcome     string    `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`
}
