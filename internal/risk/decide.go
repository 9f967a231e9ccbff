package risk

import "github.com/kilupskalvis/branchd/internal/models"

// Thresholds are the externally configured decision knobs.
type Thresholds struct {
	// AutoMergeConfidenceThreshold is the minimum per-resolution confidence
	// required for an automatic merge.
	AutoMergeConfidenceThreshold float64
	// MaxCriticalConflicts is the number of CRITICAL conflicts tolerated
	// before the merge is forced to manual resolution.
	MaxCriticalConflicts int
	// MaxHighConflicts is the number of HIGH conflicts tolerated before the
	// merge is forced to manual resolution.
	MaxHighConflicts int
}

// DefaultThresholds returns the standard decision knobs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoMergeConfidenceThreshold: 0.8,
		MaxCriticalConflicts:         0,
		MaxHighConflicts:             5,
	}
}

// deferConflictLimit is the conflict count above which a merge is deferred
// regardless of individual resolution confidence.
const deferConflictLimit = 50

// Decide combines conflicts, their resolutions, and the risk assessment
// into a final merge decision.
//
// Pure and order-independent: identical inputs always yield the same
// decision, which makes redelivered events safe to re-evaluate. The volume
// and overall-risk gate is evaluated before the confidence gate so a large
// conflict set is deferred even when every resolution is confident.
func Decide(conflicts []*models.Conflict, resolutions []*models.ConflictResolution, assessment *models.MergeRiskAssessment, th Thresholds) models.MergeDecision {
	counts := countSeverities(conflicts)

	if assessment.OverallRiskLevel == models.RiskCritical {
		return models.DecisionRejectMerge
	}

	if counts.critical > th.MaxCriticalConflicts {
		return models.DecisionManualResolution
	}
	if counts.high > th.MaxHighConflicts {
		return models.DecisionManualResolution
	}

	if len(conflicts) > deferConflictLimit || assessment.OverallRiskLevel == models.RiskHigh {
		return models.DecisionDeferMerge
	}

	if allConfident(resolutions, th.AutoMergeConfidenceThreshold) && !assessment.RequiresStakeholderApproval {
		return models.DecisionAutoMerge
	}

	return models.DecisionManualResolution
}

func allConfident(resolutions []*models.ConflictResolution, threshold float64) bool {
	for _, r := range resolutions {
		if r.Confidence < threshold {
			return false
		}
	}
	return true
}
