package models

// RiskLevel grades a single risk dimension.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RollbackComplexity grades how hard undoing a merge would be.
type RollbackComplexity string

const (
	RollbackSimple   RollbackComplexity = "simple"
	RollbackModerate RollbackComplexity = "moderate"
	RollbackComplex  RollbackComplexity = "complex"
)

// BusinessImpactAnalysis aggregates the business-facing consequences of a
// conflict set.
type BusinessImpactAnalysis struct {
	AffectedServices         []string           `json:"affected_services"`
	CriticalServices         []string           `json:"critical_services"`
	RevenueRisk              RiskLevel          `json:"revenue_risk"`
	CustomerRisk             RiskLevel          `json:"customer_risk"`
	ComplianceRisk           RiskLevel          `json:"compliance_risk"`
	EstimatedDowntimeMinutes float64            `json:"estimated_downtime_minutes"`
	RollbackComplexity       RollbackComplexity `json:"rollback_complexity"`
	BusinessContinuityScore  float64            `json:"business_continuity_score"` // [0,1]
}

// MergeRiskAssessment combines five independent risk categories into an
// overall level plus operator guidance.
type MergeRiskAssessment struct {
	DataIntegrityRisk           RiskLevel `json:"data_integrity_risk"`
	PerformanceRisk             RiskLevel `json:"performance_risk"`
	BusinessContinuityRisk      RiskLevel `json:"business_continuity_risk"`
	SecurityRisk                RiskLevel `json:"security_risk"`
	ComplianceRisk              RiskLevel `json:"compliance_risk"`
	OverallRiskLevel            RiskLevel `json:"overall_risk_level"`
	MitigationSteps             []string  `json:"mitigation_steps"`
	RecommendedMergeWindow      string    `json:"recommended_merge_window,omitempty"`
	RequiresStakeholderApproval bool      `json:"requires_stakeholder_approval"`
	Stakeholders                []string  `json:"stakeholders,omitempty"`
}

// MergeDecision is the final verdict of the decision engine.
type MergeDecision string

const (
	DecisionAutoMerge        MergeDecision = "AUTO_MERGE"
	DecisionManualResolution MergeDecision = "MANUAL_RESOLUTION"
	DecisionRejectMerge      MergeDecision = "REJECT_MERGE"
	DecisionDeferMerge       MergeDecision = "DEFER_MERGE"
)
