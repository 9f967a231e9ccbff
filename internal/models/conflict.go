package models

// ConflictSeverity grades how disruptive a schema conflict is.
type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "LOW"
	SeverityMedium   ConflictSeverity = "MEDIUM"
	SeverityHigh     ConflictSeverity = "HIGH"
	SeverityCritical ConflictSeverity = "CRITICAL"
)

// ConflictImpact describes the blast radius of a single conflict.
type ConflictImpact struct {
	AffectedServices []string `json:"affected_services,omitempty"`
	Description      string   `json:"description,omitempty"`
}

// Conflict is one incompatibility reported by the diff engine between two
// schema versions. Immutable once produced.
type Conflict struct {
	ObjectType          string           `json:"object_type"`
	FieldName           string           `json:"field_name,omitempty"`
	Severity            ConflictSeverity `json:"severity"`
	Impact              ConflictImpact   `json:"impact"`
	SuggestedStrategies []string         `json:"suggested_migration_strategies,omitempty"`
}

// ResolutionStrategy is how a conflict should be resolved.
type ResolutionStrategy string

const (
	ResolveAutomatic     ResolutionStrategy = "AUTOMATIC"
	ResolveSemiAutomatic ResolutionStrategy = "SEMI_AUTOMATIC"
	ResolveManual        ResolutionStrategy = "MANUAL"
	ResolveDefer         ResolutionStrategy = "DEFER"
	ResolveReject        ResolutionStrategy = "REJECT"
)

// ConflictResolution is the classifier's verdict for a single conflict.
type ConflictResolution struct {
	Conflict             *Conflict          `json:"conflict"`
	Strategy             ResolutionStrategy `json:"strategy"`
	ResolutionAction     string             `json:"resolution_action"`
	Confidence           float64            `json:"confidence"`             // [0,1]
	EstimatedEffortHours float64            `json:"estimated_effort_hours"`
	RequiresApproval     bool               `json:"requires_approval"`
	ApproverRoles        []string           `json:"approver_roles,omitempty"` // deduplicated, sorted
}
